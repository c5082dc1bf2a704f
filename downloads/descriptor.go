package downloads

import "strings"

const (
	DefaultName = "download"
	bytesPerKB  = 1024
)

// Descriptor is the immutable description of one simulated download.
type Descriptor struct {
	Name                string
	TotalBytes          int64
	SpeedBytesPerSecond int64
}

// NewDescriptor normalizes user input: a blank name becomes DefaultName, a
// negative size becomes 0 and the speed is floored to 1 KB/s.
func NewDescriptor(name string, totalBytes int64, speedKBps int) Descriptor {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	if totalBytes < 0 {
		totalBytes = 0
	}
	return Descriptor{
		Name:                name,
		TotalBytes:          totalBytes,
		SpeedBytesPerSecond: int64(max(1, speedKBps)) * bytesPerKB,
	}
}

// normalized guards against hand-built Descriptor literals.
func (d Descriptor) normalized() Descriptor {
	if strings.TrimSpace(d.Name) == "" {
		d.Name = DefaultName
	}
	if d.TotalBytes < 0 {
		d.TotalBytes = 0
	}
	if d.SpeedBytesPerSecond < 1 {
		d.SpeedBytesPerSecond = 1
	}
	return d
}
