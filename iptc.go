// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"bytes"
	_ "embed" // needed for the embedded IPTC fields JSON
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Source: https://exiftool.org/TagNames/IPTC.html
//
//go:embed iptc_fields.json
var iptcTagsJSON []byte

// Editable IPTC tags.
const (
	IPTCAuthor        = "2:080"
	IPTCAuthorTitle   = "2:085"
	IPTCCaption       = "2:120"
	IPTCCaptionWriter = "2:122"
	IPTCCategory      = "2:015"
	IPTCCity          = "2:090"
	IPTCCopyright     = "2:116"
	IPTCCountry       = "2:101"
	IPTCCountryCode   = "2:100"
	IPTCCredit        = "2:110"
	IPTCEditStatus    = "2:007"
	IPTCGenre         = "2:004"
	IPTCHeadline      = "2:105"
	IPTCInstructions  = "2:040"
	IPTCKeywords      = "2:025"
	IPTCLocation      = "2:092"
	IPTCObject        = "2:005"
	IPTCPriority      = "2:010"
	IPTCSource        = "2:115"
	IPTCState         = "2:095"
	IPTCSubjectCode   = "2:012"
	IPTCSuppCategory  = "2:020"
	IPTCTransferRef   = "2:103"
)

// Read-only IPTC tags.
const (
	IPTCCodedCharacterSet = "1:090"
	IPTCDateCreated       = "2:055"
	IPTCTimeCreated       = "2:060"
)

var iptcEditableTags = map[string]bool{
	IPTCAuthor:        true,
	IPTCAuthorTitle:   true,
	IPTCCaption:       true,
	IPTCCaptionWriter: true,
	IPTCCategory:      true,
	IPTCCity:          true,
	IPTCCopyright:     true,
	IPTCCountry:       true,
	IPTCCountryCode:   true,
	IPTCCredit:        true,
	IPTCEditStatus:    true,
	IPTCGenre:         true,
	IPTCHeadline:      true,
	IPTCInstructions:  true,
	IPTCKeywords:      true,
	IPTCLocation:      true,
	IPTCObject:        true,
	IPTCPriority:      true,
	IPTCSource:        true,
	IPTCState:         true,
	IPTCSubjectCode:   true,
	IPTCSuppCategory:  true,
	IPTCTransferRef:   true,
}

// IsEditableIPTC reports whether the IPTC tag, e.g. "2:120", can be set with EncodeIPTC.
func IsEditableIPTC(tag string) bool {
	return iptcEditableTags[tag]
}

const (
	irbSignature        = "8BIM"
	iptcMetaDataBlockID = 0x0404
	iptcDataSetMarker   = 0x1C
	iptcDataSetHeadLen  = 5
)

// The coded character set escape sequence for UTF-8.
var iptcCharsetUTF8Escape = []byte{0x1B, 0x25, 0x47}

var (
	iptcRecordFields = map[uint8]map[uint8]iptcField{}
	iptcRecordNames  = map[uint8]string{
		1:   "IPTCEnvelope",
		2:   "IPTCApplication",
		3:   "IPTCNewsPhoto",
		7:   "IPTCPreObjectData",
		8:   "IPTCObjectData",
		9:   "IPTCPostObjectData",
		240: "IPTCFotoStation",
	}
)

type iptcField struct {
	Record     uint8
	RecordName string
	ID         uint8
	Name       string
	Format     string
	Repeatable bool
}

// IRBRecord is a Photoshop Image Resource Block.
type IRBRecord struct {
	ID   uint16
	Name string
	// Data without the even padding byte.
	Data []byte
}

// IPTCEntry is an IPTC DataSet.
type IPTCEntry struct {
	// Tag is the record and dataset number formatted as "%d:%03d", e.g. "2:120".
	Tag  string
	Data []byte
}

// NewIPTCEntry creates a new IPTCEntry for the given record and dataset.
func NewIPTCEntry(record, dataset uint8, data string) IPTCEntry {
	return IPTCEntry{Tag: iptcTag(record, dataset), Data: []byte(data)}
}

func iptcTag(record, dataset uint8) string {
	return fmt.Sprintf("%d:%03d", record, dataset)
}

// Record returns the record number, e.g. 2 for "2:120".
func (e IPTCEntry) Record() uint8 {
	record, _ := e.parseTag()
	return record
}

// DataSet returns the dataset number, e.g. 120 for "2:120".
func (e IPTCEntry) DataSet() uint8 {
	_, dataset := e.parseTag()
	return dataset
}

// Name returns the IPTC field name, e.g. "Caption-Abstract".
func (e IPTCEntry) Name() string {
	record, dataset := e.parseTag()
	if f, found := getIptcRecordFieldDef(record, dataset); found {
		return f.Name
	}
	return UnknownPrefix + strconv.Itoa(int(dataset))
}

func (e IPTCEntry) String() string {
	return string(e.Data)
}

func (e IPTCEntry) parseTag() (record, dataset uint8) {
	record, dataset, _ = parseIPTCTag(e.Tag)
	return
}

func parseIPTCTag(tag string) (record, dataset uint8, err error) {
	if _, err = fmt.Sscanf(tag, "%d:%d", &record, &dataset); err != nil {
		return 0, 0, newErrorf(ErrDataFormat, tag, "invalid IPTC tag")
	}
	return
}

// DecodeIRB unpacks the Image Resource Blocks in b.
// Any bytes before a "8BIM" signature are skipped.
func DecodeIRB(b []byte) ([]IRBRecord, error) {
	var records []IRBRecord
	r := newStreamReader(b, binary.BigEndian, ErrFileCorrupt)

	for {
		i := bytes.Index(b[r.pos():], []byte(irbSignature))
		if i == -1 {
			break
		}
		if err := r.skip(i + len(irbSignature)); err != nil {
			return nil, err
		}

		id, err := r.read2()
		if err != nil {
			return nil, err
		}

		// Pascal string, padded to make the field length even.
		nameLen, err := r.read1()
		if err != nil {
			return nil, err
		}
		name, err := r.readBytesVolatile(int(nameLen))
		if err != nil {
			return nil, err
		}
		if nameLen%2 == 0 {
			if err := r.skip(1); err != nil {
				return nil, err
			}
		}

		dataLen, err := r.read4()
		if err != nil {
			return nil, err
		}
		if int64(dataLen) > int64(r.remaining()) {
			return nil, newCorruptErrorf(dataLen, "IRB resource 0x%04x data length exceeds segment", id)
		}
		data, err := r.readBytesVolatile(int(dataLen))
		if err != nil {
			return nil, err
		}
		if dataLen%2 == 1 && r.remaining() > 0 {
			if err := r.skip(1); err != nil {
				return nil, err
			}
		}

		records = append(records, IRBRecord{
			ID:   id,
			Name: trimTrailingNulls(name),
			Data: slices.Clone(data),
		})
	}

	return records, nil
}

// EncodeIRB packs the records into one byte stream.
// Records without any data are dropped.
func EncodeIRB(records []IRBRecord) []byte {
	var buf bytes.Buffer
	for _, rec := range records {
		if len(rec.Data) == 0 {
			continue
		}
		name := rec.Name
		if len(name) > 255 {
			name = name[:255]
		}

		buf.WriteString(irbSignature)
		binary.Write(&buf, binary.BigEndian, rec.ID)
		buf.WriteByte(byte(len(name)))
		buf.WriteString(name)
		if len(name)%2 == 0 {
			buf.WriteByte(0)
		}
		binary.Write(&buf, binary.BigEndian, uint32(len(rec.Data)))
		buf.Write(rec.Data)
		if len(rec.Data)%2 == 1 {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

// iptcCharset is the character set declared by the 1:090 DataSet.
type iptcCharset int

const (
	// No declaration, assume ISO-8859-1.
	iptcCharsetLatin1 iptcCharset = iota
	iptcCharsetUTF8
)

// resolveIPTCCharset returns the character set declared in entries.
// Any declaration other than UTF-8 fails with ErrNotImplemented.
func resolveIPTCCharset(entries []IPTCEntry) (iptcCharset, error) {
	charset := iptcCharsetLatin1
	for _, e := range entries {
		if e.Tag != IPTCCodedCharacterSet {
			continue
		}
		if !bytes.Equal(e.Data, iptcCharsetUTF8Escape) {
			return 0, newErrorf(ErrNotImplemented, fmt.Sprintf("% x", e.Data), "unsupported IPTC coded character set")
		}
		charset = iptcCharsetUTF8
	}
	return charset, nil
}

// toUTF8 converts editable entries from ISO-8859-1 to UTF-8.
// Data that already is valid UTF-8 is left alone.
func (c iptcCharset) toUTF8(e IPTCEntry) (IPTCEntry, error) {
	if c != iptcCharsetLatin1 || !IsEditableIPTC(e.Tag) || utf8.Valid(e.Data) {
		return e, nil
	}
	b, err := charmap.ISO8859_1.NewDecoder().Bytes(e.Data)
	if err != nil {
		return e, newErrorf(ErrDataFormat, e.Tag, "failed to convert IPTC data to UTF-8: %s", err)
	}
	e.Data = b
	return e, nil
}

// DecodeIPTC decodes the IPTC DataSets in the IRB stream of an APP13 segment,
// without the "Photoshop 3.0\0" header.
//
// Editable entries are returned as UTF-8.
// It returns nil if segment is empty or holds no DataSets.
func DecodeIPTC(segment []byte) ([]IPTCEntry, error) {
	var opts Options
	opts.init()
	return decodeIPTC(segment, opts)
}

func decodeIPTC(segment []byte, opts Options) ([]IPTCEntry, error) {
	if len(segment) == 0 {
		return nil, nil
	}

	records, err := DecodeIRB(segment)
	if err != nil {
		return nil, err
	}

	var entries []IPTCEntry
	for _, rec := range records {
		if rec.ID != iptcMetaDataBlockID {
			continue
		}
		recEntries, err := decodeDataSets(rec.Data, opts)
		if err != nil {
			return nil, err
		}
		entries = append(entries, recEntries...)
	}

	if len(entries) == 0 {
		return nil, nil
	}

	charset, err := resolveIPTCCharset(entries)
	if err != nil {
		return nil, err
	}

	for i, e := range entries {
		if entries[i], err = charset.toUTF8(e); err != nil {
			return nil, err
		}
	}

	return entries, nil
}

// decodeDataSets decodes the DataSets delimited by 0x1C.
func decodeDataSets(b []byte, opts Options) ([]IPTCEntry, error) {
	var entries []IPTCEntry
	r := newStreamReader(b, binary.BigEndian, ErrFileCorrupt)

	for r.remaining() > 0 {
		if r.remaining() < iptcDataSetHeadLen {
			opts.Warnf("IPTC: %d trailing bytes after last DataSet", r.remaining())
			break
		}

		// The 0x1C marker is not validated.
		if err := r.skip(1); err != nil {
			return nil, err
		}
		record, err := r.read1()
		if err != nil {
			return nil, err
		}
		dataset, err := r.read1()
		if err != nil {
			return nil, err
		}
		size, err := r.read2()
		if err != nil {
			return nil, err
		}
		tag := iptcTag(record, dataset)
		if int(size) > r.remaining() {
			return nil, newCorruptErrorf(tag, "IPTC DataSet size %d exceeds the %d remaining bytes", size, r.remaining())
		}
		data, err := r.readBytesVolatile(int(size))
		if err != nil {
			return nil, err
		}
		entries = append(entries, IPTCEntry{Tag: tag, Data: slices.Clone(data)})
	}

	return entries, nil
}

// EncodeIPTC re-encodes the IRB stream in segment with the given edits
// and returns the new stream, without the "Photoshop 3.0\0" header.
//
// decoded is the result of DecodeIPTC on segment. Its non-editable entries are kept
// and its editable entries are replaced by edits. The output always starts with a UTF-8
// 1:090 declaration, and empty Caption, Copyright and Author entries are added when
// edits does not set them. An edit for a read-only tag fails with ErrInvalidFieldWrite.
func EncodeIPTC(segment []byte, decoded, edits []IPTCEntry) ([]byte, error) {
	records, err := DecodeIRB(segment)
	if err != nil {
		return nil, err
	}

	charset, err := resolveIPTCCharset(decoded)
	if err != nil {
		return nil, err
	}

	entries := []IPTCEntry{{Tag: IPTCCodedCharacterSet, Data: slices.Clone(iptcCharsetUTF8Escape)}}
	for _, e := range decoded {
		if IsEditableIPTC(e.Tag) || e.Tag == IPTCCodedCharacterSet {
			continue
		}
		entries = append(entries, e)
	}

	found := map[string]bool{
		IPTCCaption:   false,
		IPTCCopyright: false,
		IPTCAuthor:    false,
	}
	for _, e := range edits {
		if !IsEditableIPTC(e.Tag) {
			return nil, newErrorf(ErrInvalidFieldWrite, e.Tag, "IPTC tag is read-only")
		}
		if e, err = charset.toUTF8(e); err != nil {
			return nil, err
		}
		if _, ok := found[e.Tag]; ok {
			found[e.Tag] = true
		}
		entries = append(entries, e)
	}

	// Make sure cleared values are not picked up from other sources.
	for _, tag := range []string{IPTCCaption, IPTCCopyright, IPTCAuthor} {
		if !found[tag] {
			entries = append(entries, IPTCEntry{Tag: tag})
		}
	}

	block, err := encodeDataSets(entries)
	if err != nil {
		return nil, err
	}

	iptcRecord := IRBRecord{ID: iptcMetaDataBlockID, Data: block}
	// Replace the last IPTC record, or add one.
	pos := -1
	for i, rec := range records {
		if rec.ID == iptcMetaDataBlockID {
			pos = i
		}
	}
	if pos == -1 {
		records = append(records, iptcRecord)
	} else {
		records[pos] = iptcRecord
	}

	return EncodeIRB(records), nil
}

func encodeDataSets(entries []IPTCEntry) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		record, dataset, err := parseIPTCTag(e.Tag)
		if err != nil {
			return nil, err
		}
		if len(e.Data) > 0xFFFF {
			return nil, newDataFormatErrorf(e.Tag, "IPTC DataSet of %d bytes is too large", len(e.Data))
		}
		buf.Write([]byte{iptcDataSetMarker, record, dataset})
		binary.Write(&buf, binary.BigEndian, uint16(len(e.Data)))
		buf.Write(e.Data)
	}
	return buf.Bytes(), nil
}

func getIptcRecordFieldDef(record, id uint8) (iptcField, bool) {
	recordFields, ok := iptcRecordFields[record]
	if !ok {
		return iptcField{}, false
	}
	field, ok := recordFields[id]
	return field, ok
}

func getIptcRecordName(record uint8) string {
	name, ok := iptcRecordNames[record]
	if !ok {
		return fmt.Sprintf("IPTCUnknownRecord%d", record)
	}
	return name
}

func init() {
	var fields []map[string]string
	if err := json.Unmarshal(iptcTagsJSON, &fields); err != nil {
		panic(err)
	}

	toUint8 := func(s string) uint8 {
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return uint8(i)
	}

	for _, fieldv := range fields {
		id := toUint8(fieldv["id"])
		record := toUint8(fieldv["record"])
		recordFields, ok := iptcRecordFields[record]
		if !ok {
			recordFields = map[uint8]iptcField{}
			iptcRecordFields[record] = recordFields
		}

		recordFields[id] = iptcField{
			Record:     record,
			RecordName: getIptcRecordName(record),
			ID:         id,
			Name:       fieldv["name"],
			Format:     fieldv["format"],
			Repeatable: fieldv["repeatable"] == "true",
		}
	}
}
