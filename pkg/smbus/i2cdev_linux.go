//go:build linux
// +build linux

package smbus

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl requests and transfer types from linux/i2c-dev.h and linux/i2c.h
const (
	i2cSlave = 0x0703
	i2cSMBus = 0x0720

	i2cSMBusWrite = 0
	i2cSMBusRead  = 1

	i2cSMBusByte     = 1
	i2cSMBusByteData = 2
	i2cSMBusWordData = 3

	i2cSMBusBlockMax = 32
)

// DefaultOpen opens adapters through the i2c-dev character devices
var DefaultOpen OpenFunc = OpenI2CDev

type i2cSMBusData [i2cSMBusBlockMax + 2]byte

type i2cSMBusIoctlData struct {
	readWrite uint8
	command   uint8
	size      uint32
	data      *i2cSMBusData
}

type i2cDev struct {
	file    *os.File
	address int
}

// OpenI2CDev opens /dev/i2c-<number>
func OpenI2CDev(number int) (Conn, error) {
	f, err := os.OpenFile(fmt.Sprintf("/dev/i2c-%d", number), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &i2cDev{file: f, address: -1}, nil
}

func (d *i2cDev) setAddress(address uint8) error {
	if d.address == int(address) {
		return nil
	}
	if err := unix.IoctlSetInt(int(d.file.Fd()), i2cSlave, int(address)); err != nil {
		return fmt.Errorf("failed to select address 0x%02x: %w", address, err)
	}
	d.address = int(address)
	return nil
}

func (d *i2cDev) transfer(address, readWrite, command uint8, size uint32, data *i2cSMBusData) error {
	if err := d.setAddress(address); err != nil {
		return err
	}
	args := i2cSMBusIoctlData{
		readWrite: readWrite,
		command:   command,
		size:      size,
		data:      data,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), i2cSMBus, uintptr(unsafe.Pointer(&args)))
	if errno != 0 {
		return fmt.Errorf("smbus transfer @ 0x%02x:0x%02x: %w", address, command, errno)
	}
	return nil
}

func (d *i2cDev) ReceiveByte(address uint8) (uint8, error) {
	var data i2cSMBusData
	if err := d.transfer(address, i2cSMBusRead, 0, i2cSMBusByte, &data); err != nil {
		return 0, err
	}
	return data[0], nil
}

func (d *i2cDev) ReadByteData(address, register uint8) (uint8, error) {
	var data i2cSMBusData
	if err := d.transfer(address, i2cSMBusRead, register, i2cSMBusByteData, &data); err != nil {
		return 0, err
	}
	return data[0], nil
}

func (d *i2cDev) ReadWordData(address, register uint8) (uint16, error) {
	var data i2cSMBusData
	if err := d.transfer(address, i2cSMBusRead, register, i2cSMBusWordData, &data); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint16(data[:2]), nil
}

func (d *i2cDev) SendByte(address, value uint8) error {
	return d.transfer(address, i2cSMBusWrite, value, i2cSMBusByte, nil)
}

func (d *i2cDev) WriteByteData(address, register, value uint8) error {
	var data i2cSMBusData
	data[0] = value
	return d.transfer(address, i2cSMBusWrite, register, i2cSMBusByteData, &data)
}

func (d *i2cDev) WriteWordData(address, register uint8, value uint16) error {
	var data i2cSMBusData
	binary.NativeEndian.PutUint16(data[:2], value)
	return d.transfer(address, i2cSMBusWrite, register, i2cSMBusWordData, &data)
}

func (d *i2cDev) Close() error {
	return d.file.Close()
}
