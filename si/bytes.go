package si

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Byte = 1.0
	Bits = 8.0
)

const (
	Kilo  = 1000.0
	Mega  = Kilo * Kilo
	Giga  = Kilo * Mega
	Tera  = Kilo * Giga
	Peta  = Kilo * Tera
	Exa   = Kilo * Peta
	Zetta = Kilo * Exa
	Yotta = Kilo * Zetta
)

const (
	Kibi = 1024.0
	Mebi = Kibi * Kibi
	Gibi = Kibi * Mebi
	Tebi = Kibi * Gibi
	Pebi = Kibi * Tebi
	Exbi = Kibi * Pebi
	Zebi = Kibi * Exbi
	Yobi = Kibi * Zebi
)

var Prefixes = []string{"", "K", "M", "G", "T", "P", "E", "Z", "Y"}

var Exponents10 = []float64{Byte, Kilo, Mega, Giga, Tera, Peta, Exa, Zetta, Yotta}
var Exponents2 = []float64{Byte, Kibi, Mebi, Gibi, Tebi, Pebi, Exbi, Zebi, Yobi}

// Bytes is a byte count that knows how to print itself with unit prefixes.
//
//	%.2f   -> "1.23 GB"
//	%2.2f  -> "1.15 GiB" (width 2 selects base 2)
//	%#.2f  -> "9.88 Gb"  (# prints bits)
type Bytes float64

type number interface {
	~int | ~int16 | ~int32 | ~int64 | ~uint | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func NewBytes[T number](v T) Bytes {
	return Bytes(v)
}

type FormatBase float64

var (
	Base10 FormatBase = Kilo
	Base2  FormatBase = Kibi
)

func (f FormatBase) String() string {
	switch f {
	case Kilo:
		return ""
	case Kibi:
		return "i"
	}
	panic("invalid FormatBase")
}

type FormatUnit float64

var (
	UnitBytes FormatUnit = Byte
	UnitBits  FormatUnit = Bits
)

func (f FormatUnit) String() string {
	switch f {
	case Byte:
		return "B"
	case Bits:
		return "b"
	}
	panic("invalid FormatUnit")
}

func convertClosest(v float64, exponents []float64) (float64, string) {
	for i, exp := range exponents {
		if v < exp {
			if i == 0 {
				return v, Prefixes[0]
			}
			return v / exponents[i-1], Prefixes[i-1]
		}
	}
	return v / exponents[len(exponents)-1], Prefixes[len(Prefixes)-1]
}

func (b Bytes) FormatBase(base FormatBase, unit FormatUnit) (float64, string) {
	exponents := Exponents10
	if base == Base2 {
		exponents = Exponents2
	}
	v, prefix := convertClosest(float64(b)*float64(unit), exponents)
	if prefix == "" {
		return v, unit.String()
	}
	return v, prefix + base.String() + unit.String()
}

func (b Bytes) Format(s fmt.State, format rune) {
	base := Base10
	unit := UnitBytes
	var frmt string
	for _, f := range "-+ 0" {
		if s.Flag(int(f)) {
			frmt += string(f)
		}
	}
	if s.Flag(int('#')) {
		unit = UnitBits
	}
	if w, ok := s.Width(); ok && w == 2 {
		base = Base2
	}
	if p, ok := s.Precision(); ok {
		frmt += "." + strconv.Itoa(p)
	}
	frmt += string(format)
	val, suffix := b.FormatBase(base, unit)
	fmt.Fprintf(s, fmt.Sprintf("%%%s %%s", frmt), val, suffix)
}

func (b Bytes) String() string {
	return fmt.Sprintf("%.2f", b)
}

// Binary prints b with base 2 prefixes, e.g. "10.0 MiB".
func (b Bytes) Binary() string {
	return fmt.Sprintf("%2.1f", b)
}

// Parse reads sizes such as "512", "64KB", "1.5 GiB" or "10mb".
// SI suffixes (KB, MB, ...) are treated as powers of 1024 like most
// download tools do; a bare number is taken as bytes.
func Parse(s string) (Bytes, error) {
	str := strings.ToUpper(strings.TrimSpace(s))
	if str == "" {
		return 0, fmt.Errorf("si: empty size")
	}
	str = strings.TrimSuffix(str, "B")
	str = strings.TrimSuffix(str, "I")

	multiplier := 1.0
	if n := len(str); n > 0 {
		for i := len(Prefixes) - 1; i > 0; i-- {
			if str[n-1:] == Prefixes[i] {
				multiplier = Exponents2[i]
				str = str[:n-1]
				break
			}
		}
	}

	str = strings.TrimSpace(str)
	if !IsDecimal(str) {
		return 0, fmt.Errorf("si: invalid size %q", s)
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("si: invalid size %q", s)
	}
	return Bytes(v * multiplier), nil
}

// IsDecimal reports whether s is a plain non-negative decimal such as "10"
// or "1.5". Signs, exponents, hex and Inf/NaN are rejected.
func IsDecimal(s string) bool {
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}
