//go:build linux
// +build linux

package i2c

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

func OpenPath(path string) (*Bus, error) {
	f, err := os.OpenFile(path, unix.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}
	return &Bus{f: f, path: path}, nil
}

func (b *Bus) Close() (err error) {
	return b.f.Close()
}

// read issues a register write followed by a repeated start read of len(buf) bytes.
func (b *Bus) read(address uint8, offset uint8, buf []uint8) error {
	msg := []i2c_msg{
		{
			addr:  uint16(address),
			flags: 0,
			len:   1,
			buf:   uintptr(unsafe.Pointer(&offset)),
		},
		{
			addr:  uint16(address),
			flags: uint16(_I2C_M_RD),
			len:   uint16(len(buf)),
			buf:   uintptr(unsafe.Pointer(&buf[0])),
		},
	}
	if err := transfer(b.f, msg); err != nil {
		return fmt.Errorf("%s: read 0x%02x reg 0x%02x: %w", b.path, address, offset, err)
	}
	return nil
}

func (b *Bus) write(address uint8, buf []uint8) error {
	msg := []i2c_msg{
		{
			addr:  uint16(address),
			flags: 0,
			len:   uint16(len(buf)),
			buf:   uintptr(unsafe.Pointer(&buf[0])),
		},
	}
	if err := transfer(b.f, msg); err != nil {
		return fmt.Errorf("%s: write 0x%02x reg 0x%02x: %w", b.path, address, buf[0], err)
	}
	return nil
}

func (b *Bus) ReadByte(address uint8, offset uint8) (uint8, error) {
	buf := []uint8{0}
	if err := b.read(address, offset, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadWord reads two registers starting at offset, high byte first.
func (b *Bus) ReadWord(address uint8, offset uint8) (uint16, error) {
	buf := []uint8{0, 0}
	if err := b.read(address, offset, buf); err != nil {
		return 0, err
	}
	return (uint16(buf[0]) << 8) | uint16(buf[1]), nil
}

func (b *Bus) WriteByte(address uint8, offset uint8, data uint8) error {
	return b.write(address, []uint8{offset, data})
}

func (b *Bus) WriteWord(address uint8, offset uint8, data uint16) error {
	return b.write(address, []uint8{offset, uint8((data >> 8)), uint8(data)})
}

const (
	_I2C_RDWR                = 0x0707
	_I2C_RDRW_IOCTL_MAX_MSGS = 42
	_I2C_M_RD                = 0x0001
)

type i2c_msg struct {
	addr      uint16
	flags     uint16
	len       uint16
	__padding uint16
	buf       uintptr
}

type i2c_rdwr_ioctl_data struct {
	msgs  uintptr
	nmsgs uint32
}

func transfer(f *os.File, msgs []i2c_msg) error {
	if len(msgs) > _I2C_RDRW_IOCTL_MAX_MSGS {
		return fmt.Errorf("%d i2c messages in one transfer, max %d", len(msgs), _I2C_RDRW_IOCTL_MAX_MSGS)
	}
	data := i2c_rdwr_ioctl_data{
		msgs:  uintptr(unsafe.Pointer(&msgs[0])),
		nmsgs: uint32(len(msgs)),
	}
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		f.Fd(),
		uintptr(_I2C_RDWR),
		uintptr(unsafe.Pointer(&data)),
	)
	if errno != 0 {
		return errno
	}
	return nil
}
