/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package guide

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/saga_tv/internal/models"
)

// BuildICal renders a resolved day's segments as an iCalendar document.
// Avail gaps are skipped; the calendar lists what actually airs.
func BuildICal(channel *models.Channel, segments []models.ScheduleSegment, now time.Time) []byte {
	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Saga TV//Guide Export//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:%s Guide\r\n", escapeICalText(channel.Name)))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	for i := range segments {
		seg := &segments[i]
		if seg.Kind == models.SegmentAvail {
			continue
		}

		buf.WriteString("BEGIN:VEVENT\r\n")
		buf.WriteString(fmt.Sprintf("UID:%s@sagatv\r\n", seg.ID))
		buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatICalTime(now)))
		buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalTime(seg.StartsAt)))
		buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalTime(seg.EndsAt)))
		buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(programmeTitle(seg))))
		if seg.ZoneName != "" {
			buf.WriteString(fmt.Sprintf("CATEGORIES:%s\r\n", escapeICalText(seg.ZoneName)))
		}
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")
	return buf.Bytes()
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
