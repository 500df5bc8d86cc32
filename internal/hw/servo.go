package hw

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Hobby servo timing: 50 Hz frame, 0.5 ms pulse at 0° to 2.5 ms at 180°.
const (
	servoPeriod   = 20 * time.Millisecond
	servoMinPulse = 500 * time.Microsecond
	servoMaxPulse = 2500 * time.Microsecond
	servoMaxAngle = 180
)

// SysfsServo drives a hobby servo from a Linux sysfs PWM channel.
type SysfsServo struct {
	dir    string // <chip>/pwm<channel>
	logger *slog.Logger
}

// OpenSysfsServo exports channel on the PWM chip directory (for example
// /sys/class/pwm/pwmchip0), sets a 20 ms period and enables output.
func OpenSysfsServo(chip string, channel int, logger *slog.Logger) (*SysfsServo, error) {
	dir := filepath.Join(chip, "pwm"+strconv.Itoa(channel))
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := writeSysfs(filepath.Join(chip, "export"), strconv.Itoa(channel)); err != nil {
			return nil, fmt.Errorf("export pwm channel %d: %w", channel, err)
		}
	}

	s := &SysfsServo{dir: dir, logger: logger}
	if err := s.write("period", int64(servoPeriod)); err != nil {
		return nil, err
	}
	if err := writeSysfs(filepath.Join(dir, "enable"), "1"); err != nil {
		return nil, fmt.Errorf("enable pwm %s: %w", dir, err)
	}
	return s, nil
}

// SetAngle moves the servo. Angles are clamped to 0..180.
func (s *SysfsServo) SetAngle(deg int) {
	if err := s.write("duty_cycle", int64(pulseFor(deg))); err != nil {
		s.logger.Error("servo set angle failed", "pwm", s.dir, "angle", deg, "error", err)
	}
}

// Close disables the PWM output.
func (s *SysfsServo) Close() error {
	return writeSysfs(filepath.Join(s.dir, "enable"), "0")
}

func (s *SysfsServo) write(attr string, ns int64) error {
	if err := writeSysfs(filepath.Join(s.dir, attr), strconv.FormatInt(ns, 10)); err != nil {
		return fmt.Errorf("write pwm %s/%s: %w", s.dir, attr, err)
	}
	return nil
}

// pulseFor maps an angle to a pulse width.
func pulseFor(deg int) time.Duration {
	deg = max(0, min(deg, servoMaxAngle))
	span := servoMaxPulse - servoMinPulse
	return servoMinPulse + span*time.Duration(deg)/servoMaxAngle
}

func writeSysfs(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}
