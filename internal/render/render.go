// Package render writes decoded tables, messages and port listings as
// text, JSON or YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"firestige.xyz/busctl/internal/protocol/inspect"
	"firestige.xyz/busctl/internal/protocol/rtb"
	"firestige.xyz/busctl/internal/transport/serial"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts text, json, yaml and yml. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format %q, must be text, json or yaml", s)
	}
}

// Table writes a routing table.
func Table(w io.Writer, f Format, t *rtb.Table) error {
	if f != FormatText {
		return structured(w, f, t)
	}

	fmt.Fprintf(w, "routing table: protocol=%d target=0x%03X mode=%d source=0x%03X command=0x%02X size=%d\n",
		t.Protocol, t.Target, t.Mode, t.Source, t.Command, t.Size)
	fmt.Fprintf(w, "%d nodes, %d services\n", len(t.Nodes), t.ServiceCount())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tCERT\tPORTS\tSERVICE\tTYPE\tACCESS\tALIAS")
	for _, n := range t.Nodes {
		cert := "no"
		if n.Certificate {
			cert = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t\t\t\t\n", n.ID, cert, ports(n.PortTable))
		for _, s := range n.Services {
			fmt.Fprintf(tw, "\t\t\t%d\t%d\t%s\t%s\n", s.ID, s.Type, s.Access, s.Alias)
		}
	}
	return tw.Flush()
}

// Message writes one inspect message. Text output is a single line.
func Message(w io.Writer, f Format, m inspect.Message) error {
	switch f {
	case FormatText:
		_, err := fmt.Fprintln(w, MessageLine(m))
		return err
	case FormatJSON:
		// one object per line so the stream stays line delimited
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("json marshal failed: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	default:
		return structured(w, f, []inspect.Message{m})
	}
}

// MessageLine formats m as key=value pairs.
func MessageLine(m inspect.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ts=%d proto=%d target=0x%03X mode=%d source=0x%03X cmd=0x%02X size=%d",
		m.Timestamp, m.Protocol, m.Target, m.TargetMode, m.Source, m.Command, m.Size)
	if len(m.Payload) > 0 {
		sb.WriteString(" msg=")
		sb.WriteString(m.Payload.String())
	}
	if m.Truncated() {
		sb.WriteString(" (truncated)")
	}
	return sb.String()
}

// Ports writes a serial port listing.
func Ports(w io.Writer, f Format, list []serial.PortInfo) error {
	if f != FormatText {
		return structured(w, f, list)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tUSB\tVID\tPID\tSERIAL\tPRODUCT")
	for _, p := range list {
		usb := "no"
		if p.IsUSB {
			usb = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", p.Name, usb, p.VID, p.PID, p.SerialNumber, p.Product)
	}
	return tw.Flush()
}

// Names writes a plain list of names, one per line in text mode.
func Names(w io.Writer, f Format, names []string) error {
	if names == nil {
		names = []string{}
	}
	if f != FormatText {
		return structured(w, f, names)
	}
	for _, n := range names {
		if _, err := fmt.Fprintln(w, n); err != nil {
			return err
		}
	}
	return nil
}

func ports(p []uint16) string {
	if len(p) == 0 {
		return "-"
	}
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}

func structured(w io.Writer, f Format, v any) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("json encode failed: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("yaml encode failed: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}
