package pwm

import (
	"os"
	"path/filepath"
	"testing"

	"planararm/servo"
)

func makeSysfs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
}

func readAttr(t *testing.T, root, dir, attr string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, dir, attr))
	if err != nil {
		t.Fatalf("read %s/%s: %v", dir, attr, err)
	}
	return string(data)
}

func TestPairConfigure(t *testing.T) {
	root := t.TempDir()
	makeSysfs(t, root, "0/a", "0/b")
	pair := NewPair(NewPWMAt(root, Bus0, ChannelA), NewPWMAt(root, Bus0, ChannelB), PolarityNormal)

	if err := pair.Configure(servo.PWM_PERIOD, 1500); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	for _, dir := range []string{"0/a", "0/b"} {
		if got := readAttr(t, root, dir, "period"); got != "20000000" {
			t.Errorf("%s period = %q", dir, got)
		}
		if got := readAttr(t, root, dir, "duty_cycle"); got != "1500000" {
			t.Errorf("%s duty_cycle = %q", dir, got)
		}
		if got := readAttr(t, root, dir, "polarity"); got != "normal" {
			t.Errorf("%s polarity = %q", dir, got)
		}
		if got := readAttr(t, root, dir, "enable"); got != "1" {
			t.Errorf("%s enable = %q", dir, got)
		}
	}

	pair.WriteDuty(servo.ELBOW, 1234)
	if got := readAttr(t, root, "0/b", "duty_cycle"); got != "1234000" {
		t.Errorf("elbow duty_cycle = %q", got)
	}
	if got := readAttr(t, root, "0/a", "duty_cycle"); got != "1500000" {
		t.Errorf("shoulder duty_cycle changed to %q", got)
	}

	if err := pair.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if got := readAttr(t, root, "0/a", "enable"); got != "0" {
		t.Errorf("enable after Disable = %q", got)
	}
}

func TestPairWritesOnlyOnChange(t *testing.T) {
	root := t.TempDir()
	makeSysfs(t, root, "1/a", "1/b")
	pair := NewPair(NewPWMAt(root, Bus1, ChannelA), NewPWMAt(root, Bus1, ChannelB), PolarityInversed)
	if err := pair.Configure(servo.PWM_PERIOD, 1500); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	duty := filepath.Join(root, "1/a/duty_cycle")
	if err := os.Remove(duty); err != nil {
		t.Fatal(err)
	}
	pair.WriteDuty(servo.SHOULDER, 1500)
	if _, err := os.Stat(duty); !os.IsNotExist(err) {
		t.Fatal("unchanged duty was written again")
	}
	pair.WriteDuty(servo.SHOULDER, 1600)
	if got := readAttr(t, root, "1/a", "duty_cycle"); got != "1600000" {
		t.Errorf("duty_cycle = %q", got)
	}
}

func TestConfigureMissingOutput(t *testing.T) {
	root := t.TempDir()
	makeSysfs(t, root, "0/a")
	pair := NewPair(NewPWMAt(root, Bus0, ChannelA), NewPWMAt(root, Bus0, ChannelB), PolarityNormal)
	if err := pair.Configure(servo.PWM_PERIOD, 1500); err == nil {
		t.Fatal("expected error for a missing pwm directory")
	}
}

func TestParse(t *testing.T) {
	if c, err := ParseChannel("b"); err != nil || c != ChannelB {
		t.Errorf("ParseChannel(b) = %v, %v", c, err)
	}
	if _, err := ParseChannel("c"); err == nil {
		t.Error("ParseChannel(c) should fail")
	}
	if p, err := ParsePolarity(""); err != nil || p != PolarityNormal {
		t.Errorf("ParsePolarity('') = %v, %v", p, err)
	}
	if _, err := ParsePolarity("reverse"); err == nil {
		t.Error("ParsePolarity(reverse) should fail")
	}
	if b, c, err := ParseOutput("1/b"); err != nil || b != Bus1 || c != ChannelB {
		t.Errorf("ParseOutput(1/b) = %v, %v, %v", b, c, err)
	}
	for _, bad := range []string{"1", "x/a", "-1/a", "0/c"} {
		if _, _, err := ParseOutput(bad); err == nil {
			t.Errorf("ParseOutput(%q) should fail", bad)
		}
	}
	if got := NewPWM(Bus2, ChannelA).String(); got != "pwm2a" {
		t.Errorf("String = %q", got)
	}
}
