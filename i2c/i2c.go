package i2c

// original: https://gist.github.com/tetsu-koba/33b339d26ac9c730fb09773acf39eac5#file-i2c-go

import (
	"fmt"
	"os"
)

type BusNumber int

const (
	Bus1 BusNumber = 1
	Bus2 BusNumber = 2
	Bus3 BusNumber = 3
	Bus4 BusNumber = 4
)

type Bus struct {
	f    *os.File
	path string
}

const DevicePath = "/dev/bone/i2c/%d"

func Path(busNumber BusNumber) string {
	return fmt.Sprintf(DevicePath, busNumber)
}

func Open(busNumber BusNumber) (*Bus, error) {
	return OpenPath(Path(busNumber))
}

func (b *Bus) String() string {
	return b.path
}
