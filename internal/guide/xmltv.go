/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package guide

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/friendsincode/saga_tv/internal/models"
)

// xmltvTimeLayout is the XMLTV timestamp format with UTC offset.
const xmltvTimeLayout = "20060102150405 -0700"

// TV is the XMLTV document root.
type TV struct {
	XMLName   xml.Name    `xml:"tv"`
	Generator string      `xml:"generator-info-name,attr,omitempty"`
	Channels  []Channel   `xml:"channel"`
	Programs  []Programme `xml:"programme"`
}

// Channel is an XMLTV channel element.
type Channel struct {
	ID          string   `xml:"id,attr"`
	DisplayName []string `xml:"display-name"`
	Icon        *Icon    `xml:"icon,omitempty"`
}

// Icon is an XMLTV channel icon.
type Icon struct {
	Src string `xml:"src,attr"`
}

// Programme is one XMLTV programme entry.
type Programme struct {
	Start    string    `xml:"start,attr"`
	Stop     string    `xml:"stop,attr"`
	Channel  string    `xml:"channel,attr"`
	Title    Title     `xml:"title"`
	Desc     string    `xml:"desc,omitempty"`
	Category *Category `xml:"category,omitempty"`
}

// Title carries the programme title with an optional language code.
type Title struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Category carries the programme category with an optional language code.
type Category struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

// BuildXMLTV renders a resolved day's segments as an XMLTV document.
// Avail gaps become untitled placeholder programmes so consumers see a
// continuous guide.
func BuildXMLTV(channel *models.Channel, segments []models.ScheduleSegment, loc *time.Location) *TV {
	tv := &TV{
		Generator: "saga-tv",
		Channels: []Channel{{
			ID:          channel.Slug,
			DisplayName: []string{channel.Name},
		}},
		Programs: make([]Programme, 0, len(segments)),
	}

	for i := range segments {
		seg := &segments[i]
		p := Programme{
			Start:   seg.StartsAt.In(loc).Format(xmltvTimeLayout),
			Stop:    seg.EndsAt.In(loc).Format(xmltvTimeLayout),
			Channel: channel.Slug,
			Title:   Title{Value: programmeTitle(seg)},
		}
		if seg.Kind != models.SegmentContent {
			p.Category = &Category{Value: string(seg.Kind)}
		}
		tv.Programs = append(tv.Programs, p)
	}
	return tv
}

// MarshalXMLTV serializes the document with the XML declaration.
func MarshalXMLTV(tv *TV) ([]byte, error) {
	out, err := xml.MarshalIndent(tv, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal xmltv: %w", err)
	}
	header := `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
	return append([]byte(header), out...), nil
}

func programmeTitle(seg *models.ScheduleSegment) string {
	if seg.Title != "" {
		return seg.Title
	}
	switch seg.Kind {
	case models.SegmentAvail:
		return "To Be Announced"
	case models.SegmentCarryover:
		return "Continued"
	default:
		return "Untitled"
	}
}
