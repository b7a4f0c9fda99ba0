// Package fits reads, creates and updates FITS primary images.
//
// Only the parts of the FITS 4.0 standard needed for large spectral cubes
// are covered: a primary header made of 80 byte cards stored in 2880 byte
// blocks, followed by an n-dimensional image stored big-endian with NAXIS1
// varying fastest. Pixel data is accessed through a memory mapping so that
// cubes larger than physical memory can be processed plane by plane.
package fits

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	// BlockSize is the size of a FITS logical record. Headers and data
	// sections are padded to a multiple of it.
	BlockSize = 2880

	// CardSize is the length of a single header card.
	CardSize = 80

	cardsPerBlock = BlockSize / CardSize
	valueColumn   = 30 // last column of a fixed format value
)

var (
	// ErrNotFITS is returned when a file does not start with a valid header.
	ErrNotFITS = errors.New("fits: not a FITS file")

	// ErrMissingKeyword is returned when a required keyword is absent.
	ErrMissingKeyword = errors.New("fits: missing keyword")

	// ErrHeaderFull is returned when an in-place update would need more
	// header blocks than the file has.
	ErrHeaderFull = errors.New("fits: header has no room for new keywords")
)

// Card is a single keyword record of a header.
type Card struct {
	Key     string
	Value   string // raw value field, string values keep their quotes
	Comment string
	HasEq   bool // false for commentary cards such as COMMENT and HISTORY
}

// Header is an ordered list of cards, without the terminating END card.
type Header struct {
	cards []Card
	index map[string]int
}

// NewHeader creates an empty header.
func NewHeader() *Header {
	return &Header{index: make(map[string]int)}
}

// ReadHeader reads a header from r. It returns the header and the number of
// bytes it occupies in the stream, which is always a multiple of BlockSize.
func ReadHeader(r io.Reader) (*Header, int64, error) {
	h := NewHeader()
	block := make([]byte, BlockSize)
	var size int64

	for {
		if _, err := io.ReadFull(r, block); err != nil {
			if size == 0 {
				return nil, 0, fmt.Errorf("%w: %v", ErrNotFITS, err)
			}
			return nil, 0, fmt.Errorf("%w: header not terminated by END: %v", ErrNotFITS, err)
		}
		size += BlockSize

		for i := 0; i < cardsPerBlock; i++ {
			record := string(block[i*CardSize : (i+1)*CardSize])
			if size == BlockSize && i == 0 && !strings.HasPrefix(record, "SIMPLE  =") {
				return nil, 0, fmt.Errorf("%w: first card is not SIMPLE", ErrNotFITS)
			}

			card := parseCard(record)
			if card.Key == "END" && !card.HasEq {
				return h, size, nil
			}
			if card.Key == "" && strings.TrimSpace(record) == "" {
				continue
			}
			h.append(card)
		}
	}
}

func parseCard(record string) Card {
	card := Card{Key: strings.TrimSpace(record[:8])}
	if len(record) < 10 || record[8:10] != "= " {
		card.Comment = strings.TrimRight(record[8:], " ")
		return card
	}
	card.HasEq = true

	rest := strings.TrimSpace(record[10:])
	if strings.HasPrefix(rest, "'") {
		// search for the closing quote, '' is an escaped quote
		end := 1
		for end < len(rest) {
			if rest[end] == '\'' {
				if end+1 < len(rest) && rest[end+1] == '\'' {
					end += 2
					continue
				}
				break
			}
			end++
		}
		if end >= len(rest) {
			card.Value = rest
			return card
		}
		card.Value = rest[:end+1]
		rest = strings.TrimSpace(rest[end+1:])
		if strings.HasPrefix(rest, "/") {
			card.Comment = strings.TrimSpace(rest[1:])
		}
		return card
	}

	if j := strings.Index(rest, "/"); j != -1 {
		card.Comment = strings.TrimSpace(rest[j+1:])
		rest = rest[:j]
	}
	card.Value = strings.TrimSpace(rest)
	return card
}

func (h *Header) append(card Card) {
	if card.HasEq {
		if _, dup := h.index[card.Key]; !dup {
			h.index[card.Key] = len(h.cards)
		}
	}
	h.cards = append(h.cards, card)
}

// Clone returns a deep copy of the header.
func (h *Header) Clone() *Header {
	c := &Header{
		cards: append([]Card(nil), h.cards...),
		index: make(map[string]int, len(h.index)),
	}
	for k, v := range h.index {
		c.index[k] = v
	}
	return c
}

// Cards returns the cards of the header in order.
func (h *Header) Cards() []Card {
	return append([]Card(nil), h.cards...)
}

// Has reports whether key is present.
func (h *Header) Has(key string) bool {
	_, ok := h.index[strings.ToUpper(key)]
	return ok
}

// Raw returns the unparsed value field of key.
func (h *Header) Raw(key string) (string, bool) {
	i, ok := h.index[strings.ToUpper(key)]
	if !ok {
		return "", false
	}
	return h.cards[i].Value, true
}

// Int returns the integer value of key.
func (h *Header) Int(key string) (int, error) {
	raw, ok := h.Raw(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKeyword, key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		// some writers store integral values as reals
		f, ferr := parseReal(raw)
		if ferr != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("fits: keyword %s: %q is not an integer", key, raw)
		}
		v = int(f)
	}
	return v, nil
}

// Float returns the real value of key.
func (h *Header) Float(key string) (float64, error) {
	raw, ok := h.Raw(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKeyword, key)
	}
	v, err := parseReal(raw)
	if err != nil {
		return 0, fmt.Errorf("fits: keyword %s: %q is not a number", key, raw)
	}
	return v, nil
}

// FloatOr returns the real value of key, or def if key is absent.
func (h *Header) FloatOr(key string, def float64) (float64, error) {
	if !h.Has(key) {
		return def, nil
	}
	return h.Float(key)
}

// String returns the string value of key with quotes and trailing blanks
// removed.
func (h *Header) String(key string) (string, error) {
	raw, ok := h.Raw(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingKeyword, key)
	}
	if len(raw) < 2 || raw[0] != '\'' || raw[len(raw)-1] != '\'' {
		return "", fmt.Errorf("fits: keyword %s: %q is not a string", key, raw)
	}
	s := strings.ReplaceAll(raw[1:len(raw)-1], "''", "'")
	return strings.TrimRight(s, " "), nil
}

func parseReal(raw string) (float64, error) {
	raw = strings.Replace(strings.ToUpper(raw), "D", "E", 1)
	return strconv.ParseFloat(raw, 64)
}

// Set assigns value to key. An existing card keeps its position and
// comment, a new card is appended. Supported value types are bool, int,
// int64, float64 and string.
func (h *Header) Set(key string, value interface{}) error {
	key = strings.ToUpper(key)
	if len(key) > 8 {
		return fmt.Errorf("fits: keyword %q longer than 8 characters", key)
	}
	raw, err := formatValue(value)
	if err != nil {
		return fmt.Errorf("fits: keyword %s: %w", key, err)
	}

	if i, ok := h.index[key]; ok {
		h.cards[i].Value = raw
		return nil
	}
	h.append(Card{Key: key, Value: raw, HasEq: true})
	return nil
}

func formatValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return "T", nil
		}
		return "F", nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return formatReal(v), nil
	case string:
		s := strings.ReplaceAll(v, "'", "''")
		if len(s) < 8 {
			s += strings.Repeat(" ", 8-len(s))
		}
		return "'" + s + "'", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}

func formatReal(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NAN"
	case math.IsInf(v, 1):
		return "+INF"
	case math.IsInf(v, -1):
		return "-INF"
	}
	s := strconv.FormatFloat(v, 'G', -1, 64)
	if !strings.ContainsAny(s, ".E") {
		s += ".0"
	}
	return s
}

// Axes returns the NAXISn values, NAXIS1 first.
func (h *Header) Axes() ([]int, error) {
	n, err := h.Int("NAXIS")
	if err != nil {
		return nil, err
	}
	axes := make([]int, n)
	for i := range axes {
		key := fmt.Sprintf("NAXIS%d", i+1)
		if axes[i], err = h.Int(key); err != nil {
			return nil, err
		}
	}
	return axes, nil
}

// Encode serializes the header including the END card, padded with blanks to
// a multiple of BlockSize.
func (h *Header) Encode() []byte {
	var buf bytes.Buffer
	for _, card := range h.cards {
		buf.WriteString(formatCard(card))
	}
	buf.WriteString(padCard("END"))

	if rem := buf.Len() % BlockSize; rem != 0 {
		buf.Write(bytes.Repeat([]byte{' '}, BlockSize-rem))
	}
	return buf.Bytes()
}

// Size returns the number of bytes Encode produces.
func (h *Header) Size() int64 {
	cards := len(h.cards) + 1
	blocks := (cards + cardsPerBlock - 1) / cardsPerBlock
	return int64(blocks * BlockSize)
}

func formatCard(card Card) string {
	key := card.Key
	if len(key) < 8 {
		key += strings.Repeat(" ", 8-len(key))
	}
	if !card.HasEq {
		return padCard(key + card.Comment)
	}

	value := card.Value
	if !strings.HasPrefix(value, "'") && len(value) < valueColumn-10 {
		value = strings.Repeat(" ", valueColumn-10-len(value)) + value
	}
	s := key + "= " + value
	if card.Comment != "" {
		s += " / " + card.Comment
	}
	return padCard(s)
}

func padCard(s string) string {
	if len(s) >= CardSize {
		return s[:CardSize]
	}
	return s + strings.Repeat(" ", CardSize-len(s))
}

// NewImageHeader creates a minimal primary header for an image with the
// given BITPIX and axis lengths, NAXIS1 first.
func NewImageHeader(bitpix int, axes ...int) *Header {
	h := NewHeader()
	h.Set("SIMPLE", true)
	h.Set("BITPIX", bitpix)
	h.Set("NAXIS", len(axes))
	for i, n := range axes {
		h.Set(fmt.Sprintf("NAXIS%d", i+1), n)
	}
	return h
}

// Delete removes key from the header. Deleting an absent key is a no-op.
func (h *Header) Delete(key string) {
	i, ok := h.index[strings.ToUpper(key)]
	if !ok {
		return
	}
	h.cards = append(h.cards[:i], h.cards[i+1:]...)
	h.index = make(map[string]int, len(h.cards))
	for j, card := range h.cards {
		if _, dup := h.index[card.Key]; card.HasEq && !dup {
			h.index[card.Key] = j
		}
	}
}
