/*
Copyright 2024 The KCP Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package decision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/scheduler"
)

// OutputFormat names a rendering of decisions.
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
	OutputFormatTable OutputFormat = "table"
)

// OutputFormats lists the supported formats.
var OutputFormats = []OutputFormat{OutputFormatTable, OutputFormatJSON, OutputFormatYAML}

// ParseOutputFormat parses a format name, case-insensitively.
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(s))
	for _, known := range OutputFormats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported output format %q, must be one of %v", s, OutputFormats)
}

// Formatter renders decisions and records.
type Formatter struct {
	now func() time.Time
}

// NewFormatter creates a formatter.
func NewFormatter() *Formatter {
	return &Formatter{now: time.Now}
}

// FormatDecision renders a single decision with its per-candidate breakdown.
func (f *Formatter) FormatDecision(d *scheduler.Decision, format OutputFormat) ([]byte, error) {
	switch format {
	case OutputFormatJSON:
		return json.MarshalIndent(d, "", "  ")
	case OutputFormatYAML:
		return yaml.Marshal(d)
	case OutputFormatTable:
		return f.decisionTable(d)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// FormatRecords renders a list of records, in the given order.
func (f *Formatter) FormatRecords(records []*Record, format OutputFormat) ([]byte, error) {
	if records == nil {
		records = []*Record{}
	}
	switch format {
	case OutputFormatJSON:
		return json.MarshalIndent(records, "", "  ")
	case OutputFormatYAML:
		return yaml.Marshal(records)
	case OutputFormatTable:
		return f.recordsTable(records)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

func (f *Formatter) decisionTable(d *scheduler.Decision) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Service: %s\nSelected: %s (score %.4f)\n\n", d.Service, d.Node, d.Score)

	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tLATENCY\tTRAFFIC\tACTIVATION\tSCORE\tOBSERVED\t")
	for _, c := range d.Candidates {
		marker := ""
		if c.Node == d.Node {
			marker = " *"
		}
		fmt.Fprintf(w, "%s%s\t%.4f (%.2f)\t%.4g (%.2f)\t%.4g (%.2f)\t%.4f\t%t\t\n",
			c.Node, marker,
			c.Raw.Latency, c.Normalized.Latency,
			c.Raw.Traffic, c.Normalized.Traffic,
			c.Raw.Activation, c.Normalized.Activation,
			c.Score, c.LatencyObserved,
		)
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	if len(d.Warnings) > 0 {
		buf.WriteString("\nWarnings:\n")
		for _, warn := range d.Warnings {
			fmt.Fprintf(&buf, "  - %s\n", warn.Error())
		}
	}
	return buf.Bytes(), nil
}

func (f *Formatter) recordsTable(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSERVICE\tNODE\tSCORE\tSTATUS\tAGE\t")
	now := f.now()
	for _, r := range records {
		node := r.Node
		if node == "" {
			node = "<none>"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%s\t%s\t\n",
			shortID(r.ID), r.Service, node, r.Score, r.Status, now.Sub(r.Timestamp).Truncate(time.Second))
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
