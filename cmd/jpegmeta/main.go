// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Command jpegmeta prints and edits the metadata of a JPEG file.
//
//	jpegmeta [-exif] [-iptc] [-xmp] [-segments] [-set rec:ds=value]... [-clear-exif] [-o out.jpg] file.jpg
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/bep/jpegmeta"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("jpegmeta: ")
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// iptcEdits collects repeated -set flags.
type iptcEdits []jpegmeta.IPTCEntry

func (e *iptcEdits) String() string {
	var parts []string
	for _, entry := range *e {
		parts = append(parts, entry.Tag+"="+entry.String())
	}
	return strings.Join(parts, ",")
}

func (e *iptcEdits) Set(s string) error {
	tag, value, found := strings.Cut(s, "=")
	if !found {
		return fmt.Errorf("expected rec:ds=value, got %q", s)
	}
	rec, ds, found := strings.Cut(tag, ":")
	if !found {
		return fmt.Errorf("expected rec:ds=value, got %q", s)
	}
	record, err := strconv.ParseUint(rec, 10, 8)
	if err != nil {
		return fmt.Errorf("invalid record in %q: %w", s, err)
	}
	dataset, err := strconv.ParseUint(ds, 10, 8)
	if err != nil {
		return fmt.Errorf("invalid dataset in %q: %w", s, err)
	}
	*e = append(*e, jpegmeta.NewIPTCEntry(uint8(record), uint8(dataset), value))
	return nil
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("jpegmeta", flag.ContinueOnError)
	var (
		showEXIF     = fs.Bool("exif", false, "print the EXIF entries")
		showIPTC     = fs.Bool("iptc", false, "print the IPTC entries")
		showXMP      = fs.Bool("xmp", false, "print the XMP tags")
		showSegments = fs.Bool("segments", false, "print the header segments")
		clearEXIF    = fs.Bool("clear-exif", false, "clear the user authored EXIF fields")
		out          = fs.String("o", "", "write the edited image to this file")
		sets         iptcEdits
	)
	fs.Var(&sets, "set", "set an IPTC field, e.g. 2:120=Caption (repeatable)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one input file")
	}

	edit := *clearEXIF || len(sets) > 0
	if edit && *out == "" {
		return errors.New("-o is required when editing")
	}
	if !edit && !*showEXIF && !*showIPTC && !*showXMP && !*showSegments {
		*showSegments, *showEXIF, *showIPTC, *showXMP = true, true, true, true
	}

	img, err := jpegmeta.ReadFile(fs.Arg(0), jpegmeta.Options{
		ReadOnly: !edit,
		Warnf:    log.Printf,
	})
	if err != nil {
		return err
	}

	if *clearEXIF {
		if err := img.SetEXIF(nil); err != nil {
			return err
		}
	}

	if len(sets) > 0 {
		if err := setIPTC(img, sets); err != nil {
			return err
		}
	}

	if *showSegments {
		for i, s := range img.Header {
			fmt.Fprintf(stdout, "segment %d: %s (%s) %d bytes\n", i, s.Name(), s.Marker, len(s.Data))
		}
	}

	if *showEXIF {
		entries, err := img.EXIF()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(stdout, "exif %s %s: %s\n", e.Key(), e.Name(), e.Text)
		}
	}

	if *showIPTC {
		entries, err := img.IPTC()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(stdout, "iptc %s %s: %q\n", e.Tag, e.Name(), e.Data)
		}
	}

	if *showXMP {
		tags, err := img.XMP()
		if err != nil {
			return err
		}
		for _, ti := range tags {
			fmt.Fprintf(stdout, "xmp %s %s: %v\n", ti.Namespace, ti.Tag, ti.Value)
		}
	}

	if edit {
		return img.WriteFile(*out)
	}

	return nil
}

// setIPTC applies sets on top of the existing editable IPTC entries.
func setIPTC(img *jpegmeta.Image, sets iptcEdits) error {
	existing, err := img.IPTC()
	if err != nil {
		return err
	}

	var entries []jpegmeta.IPTCEntry
	for _, e := range existing {
		if !jpegmeta.IsEditableIPTC(e.Tag) {
			continue
		}
		if slices.ContainsFunc(sets, func(s jpegmeta.IPTCEntry) bool { return s.Tag == e.Tag }) {
			continue
		}
		entries = append(entries, e)
	}

	return img.SetIPTC(append(entries, sets...))
}
