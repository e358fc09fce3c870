package gpio

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"planararm/logger"
)

// Alias is a header pin name such as "P9_12".
type Alias string

type Number int

type Value int

const (
	LOW  Value = 0
	HIGH Value = 1
)

type Direction string

const (
	IN  Direction = "in"
	OUT Direction = "out"
)

const DEFAULT_ROOT = "/sys/class/gpio"

// sysfs needs a moment to create the gpioN directory after an export
const EXPORT_SETTLE = 100 * time.Millisecond

type Gpio struct {
	root      string
	number    Number
	direction string
	value     string
}

func (g *Gpio) Number() Number {
	return g.number
}

func (g *Gpio) Value() (Value, error) {
	data, err := os.ReadFile(g.value)
	if err != nil {
		return LOW, err
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return LOW, err
	}
	return Value(value), nil
}

func (g *Gpio) SetValue(value Value) error {
	data := fmt.Sprintf("%d", value)
	return os.WriteFile(g.value, []byte(data), 0666)
}

func (g *Gpio) Direction() (Direction, error) {
	data, err := os.ReadFile(g.direction)
	if err != nil {
		return IN, err
	}
	return Direction(strings.TrimSpace(string(data))), nil
}

func (g *Gpio) SetDirection(direction Direction) error {
	return os.WriteFile(g.direction, []byte(direction), 0666)
}

func (g *Gpio) Unexport() error {
	value := fmt.Sprintf("%d", g.number)
	return os.WriteFile(filepath.Join(g.root, "unexport"), []byte(value), 0666)
}

// Export makes a line available under root. A line that is already exported
// is reused.
func Export(root string, number Number) (*Gpio, error) {
	g := &Gpio{
		root:      root,
		number:    number,
		value:     filepath.Join(root, fmt.Sprintf("gpio%d", number), "value"),
		direction: filepath.Join(root, fmt.Sprintf("gpio%d", number), "direction"),
	}
	if _, err := os.Stat(g.value); err == nil {
		return g, nil
	}
	value := fmt.Sprintf("%d", number)
	if err := os.WriteFile(filepath.Join(root, "export"), []byte(value), 0666); err != nil {
		return nil, fmt.Errorf("export gpio%d: %w", number, err)
	}
	time.Sleep(EXPORT_SETTLE)
	return g, nil
}

// ExportAlias resolves a header pin name with the libgpiod tools and exports it.
func ExportAlias(root string, alias Alias) (*Gpio, error) {
	number, err := GrepNumber(alias)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", alias, err)
	}
	return Export(root, Number(number))
}

func GrepNumber(alias Alias) (int, error) {
	cmd := exec.Command(
		"bash", "-c",
		fmt.Sprintf("expr $(ls -l /sys/class/gpio/gpiochip* | grep $(gpiodetect | grep $(gpiofind %s | grep -o -E \"gpiochip[0-9]+\") | grep -o -E \"[0-9]+\\.gpio\") | grep -o -E \"[0-9]+$\") + $(gpiofind %s | grep -o -E \"[0-9]+$\")", alias, alias))
	stdout, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	number, err := strconv.Atoi(
		strings.Trim(string(stdout), "\n\r"),
	)
	if err != nil {
		return 0, err
	}
	return number, nil
}

// Rail switches the servo supply through a single output line.
type Rail struct {
	line      *Gpio
	activeLow bool
}

func NewRail(line *Gpio, activeLow bool) (*Rail, error) {
	r := &Rail{line: line, activeLow: activeLow}
	if err := line.SetDirection(OUT); err != nil {
		return nil, fmt.Errorf("gpio%d direction: %w", line.number, err)
	}
	return r, nil
}

func (r *Rail) level(on bool) Value {
	if on != r.activeLow {
		return HIGH
	}
	return LOW
}

func (r *Rail) Enable() error {
	if err := r.line.SetValue(r.level(true)); err != nil {
		return fmt.Errorf("servo rail on: %w", err)
	}
	logger.Infof("servo power rail enabled (gpio%d)", r.line.number)
	return nil
}

func (r *Rail) Disable() error {
	if err := r.line.SetValue(r.level(false)); err != nil {
		return fmt.Errorf("servo rail off: %w", err)
	}
	logger.Infof("servo power rail disabled (gpio%d)", r.line.number)
	return nil
}

func (r *Rail) Enabled() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, err
	}
	return v == r.level(true), nil
}
