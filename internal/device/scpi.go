package device

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"electronic_load/internal/errs"
	"electronic_load/internal/logger"
	"electronic_load/internal/models"

	"go.bug.st/serial"
)

// Supported serial baud rates of the load.
var BaudRates = []int{9600, 19200, 38400, 57600, 115200}

const (
	defaultReadTimeout = time.Second
	readChunk          = 64
	lineTerminator     = "\n"
)

var (
	errReadTimeout = errors.New("no response before read timeout")
	errEmptyReply  = errors.New("empty response")
)

// Port is the subset of serial.Port the SCPI client needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialConfig describes how to open the serial line.
type SerialConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
	Debug    bool // log every command and response
}

// SCPI drives the load with its SCPI-style text protocol.
type SCPI struct {
	port    Port
	log     *logger.Logger
	debug   bool
	buf     []byte
	pending []byte
}

var _ Device = (*SCPI)(nil)

// OpenSerial opens the serial port and returns a ready SCPI client.
func OpenSerial(cfg SerialConfig, log *logger.Logger) (*SCPI, error) {
	p, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, classify("open "+cfg.Port, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		_ = p.Close()
		return nil, classify("set read timeout", err)
	}
	d := NewSCPI(p, log)
	d.debug = cfg.Debug
	return d, nil
}

// NewSCPI wraps an already configured port.
func NewSCPI(p Port, log *logger.Logger) *SCPI {
	return &SCPI{port: p, log: log, buf: make([]byte, readChunk)}
}

// classify maps transport errors onto device error kinds.
func classify(op string, err error) *errs.DeviceError {
	var portErr *serial.PortError
	switch {
	case errors.As(err, &portErr) && portErr.Code() == serial.PortClosed,
		errors.Is(err, io.EOF), errors.Is(err, os.ErrClosed):
		return errs.NewDeviceError(op, errs.KindPortClosed, err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return errs.NewDeviceError(op, errs.KindTimeout, err)
	default:
		return errs.NewDeviceError(op, errs.KindPortClosed, err)
	}
}

func (d *SCPI) write(op, cmd string) error {
	d.pending = d.pending[:0]
	if d.debug && d.log != nil {
		d.log.Debugw("serial_tx", "op", op, "cmd", cmd)
	}
	if _, err := d.port.Write([]byte(cmd + lineTerminator)); err != nil {
		return classify(op, err)
	}
	return nil
}

func (d *SCPI) readLine(op string) (string, error) {
	for {
		if i := bytes.IndexByte(d.pending, '\n'); i >= 0 {
			line := strings.TrimSpace(string(d.pending[:i]))
			d.pending = d.pending[i+1:]
			if d.debug && d.log != nil {
				d.log.Debugw("serial_rx", "op", op, "line", line)
			}
			return line, nil
		}
		n, err := d.port.Read(d.buf)
		if n > 0 {
			d.pending = append(d.pending, d.buf[:n]...)
			continue
		}
		if err != nil {
			return "", classify(op, err)
		}
		// go.bug.st/serial reports a read timeout as (0, nil).
		return "", errs.NewDeviceError(op, errs.KindTimeout, errReadTimeout)
	}
}

func (d *SCPI) query(op, cmd string) (string, error) {
	if err := d.write(op, cmd); err != nil {
		return "", err
	}
	line, err := d.readLine(op)
	if err != nil {
		return "", err
	}
	if line == "" {
		return "", errs.NewDeviceError(op, errs.KindMalformed, errEmptyReply)
	}
	return line, nil
}

// exec sends a setting command and asks the device whether it accepted it.
func (d *SCPI) exec(op, cmd string) error {
	if err := d.write(op, cmd); err != nil {
		return err
	}
	reply, err := d.query(op, ":SYST:ERR?")
	if err != nil {
		return err
	}
	code, msg, _ := strings.Cut(reply, ",")
	n, convErr := strconv.Atoi(strings.TrimSpace(code))
	if convErr != nil {
		return errs.NewDeviceError(op, errs.KindMalformed, fmt.Errorf("error queue reply %q", reply))
	}
	if n != 0 {
		return errs.NewDeviceError(op, errs.KindOutOfLimit, errors.New(strings.Trim(msg, ` "`)))
	}
	return nil
}

// parseQuantity parses values like "12.345V", "2A/uS" or "4AH".
func parseQuantity(op, s string) (float64, error) {
	num := strings.TrimRightFunc(strings.TrimSpace(s), func(r rune) bool {
		return unicode.IsLetter(r) || r == '%' || r == '/'
	})
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, errs.NewDeviceError(op, errs.KindMalformed, fmt.Errorf("value %q", s))
	}
	return v, nil
}

func (d *SCPI) queryFloat(op, cmd string) (float64, error) {
	reply, err := d.query(op, cmd)
	if err != nil {
		return 0, err
	}
	return parseQuantity(op, reply)
}

// queryFields reads a comma separated reply and checks its field count.
func (d *SCPI) queryFields(op, cmd string, want int) ([]float64, error) {
	reply, err := d.query(op, cmd)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(reply, ",")
	if want > 0 && len(parts) != want {
		return nil, errs.NewDeviceError(op, errs.KindMalformed, fmt.Errorf("want %d fields, got %q", want, reply))
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		if out[i], err = parseQuantity(op, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func (d *SCPI) Model() (string, error) {
	return d.query("read model", "*IDN?")
}

func (d *SCPI) Mode() (models.Mode, error) {
	const op = "read mode"
	reply, err := d.query(op, ":FUNC?")
	if err != nil {
		return "", err
	}
	m, err := models.ParseMode(reply)
	if err != nil {
		return "", errs.NewDeviceError(op, errs.KindMalformed, err)
	}
	return m, nil
}

func (d *SCPI) Voltage() (float64, error) { return d.queryFloat("read voltage", ":MEAS:VOLT?") }
func (d *SCPI) Current() (float64, error) { return d.queryFloat("read current", ":MEAS:CURR?") }
func (d *SCPI) Power() (float64, error)   { return d.queryFloat("read power", ":MEAS:POW?") }

func (d *SCPI) queryBool(op, cmd string) (bool, error) {
	reply, err := d.query(op, cmd)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(reply) {
	case "ON", "1":
		return true, nil
	case "OFF", "0":
		return false, nil
	}
	return false, errs.NewDeviceError(op, errs.KindMalformed, fmt.Errorf("switch state %q", reply))
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func (d *SCPI) OutputEnabled() (bool, error) {
	return d.queryBool("read output state", ":INP?")
}

func (d *SCPI) SetOutput(on bool) error {
	if on {
		return d.write("set output on", ":INP ON")
	}
	return d.write("set output off", ":INP OFF")
}

func (d *SCPI) ApplySetpoint(sp models.Setpoint) error {
	const op = "apply setpoint"
	switch sp.Mode {
	case models.ModeConstantCurrent:
		return d.exec(op, ":CURR "+num(sp.Value)+"A")
	case models.ModeConstantVoltage:
		return d.exec(op, ":VOLT "+num(sp.Value)+"V")
	case models.ModeConstantResistance:
		return d.exec(op, ":RES "+num(sp.Value)+"OHM")
	case models.ModeConstantPower:
		return d.exec(op, ":POW "+num(sp.Value)+"W")
	case models.ModeShort:
		return d.exec(op, ":FUNC SHORt")
	}
	return errs.NewDeviceError(op, errs.KindOutOfLimit, fmt.Errorf("mode %q has no setpoint", sp.Mode))
}

var limitCommands = map[models.LimitKind]struct{ cmd, unit string }{
	models.LimitVoltage:    {":VOLT:UPP", "V"},
	models.LimitCurrent:    {":CURR:UPP", "A"},
	models.LimitPower:      {":POW:UPP", "W"},
	models.LimitResistance: {":RES:UPP", "OHM"},
}

func (d *SCPI) Limits() (models.Limits, error) {
	const op = "read limits"
	var l models.Limits
	var err error
	if l.Voltage, err = d.queryFloat(op, ":VOLT:UPP?"); err != nil {
		return models.Limits{}, err
	}
	if l.Current, err = d.queryFloat(op, ":CURR:UPP?"); err != nil {
		return models.Limits{}, err
	}
	if l.Power, err = d.queryFloat(op, ":POW:UPP?"); err != nil {
		return models.Limits{}, err
	}
	if l.Resistance, err = d.queryFloat(op, ":RES:UPP?"); err != nil {
		return models.Limits{}, err
	}
	return l, nil
}

func (d *SCPI) SetLimit(kind models.LimitKind, v float64) error {
	op := "set " + string(kind) + " limit"
	c, ok := limitCommands[kind]
	if !ok {
		return errs.NewDeviceError(op, errs.KindOutOfLimit, fmt.Errorf("unknown limit %q", kind))
	}
	return d.exec(op, c.cmd+" "+num(v)+c.unit)
}

func (d *SCPI) BatteryCapacity() (float64, error) {
	return d.queryFloat("read battery capacity", ":BATT:CAP?")
}

func (d *SCPI) BatteryMinutes() (float64, error) {
	return d.queryFloat("read battery time", ":BATT:TIM?")
}

func (d *SCPI) BatteryProfile(slot int) (models.BatteryProfile, error) {
	f, err := d.queryFields("read battery profile", fmt.Sprintf(":BATT? %d", slot), 5)
	if err != nil {
		return models.BatteryProfile{}, err
	}
	return models.BatteryProfile{
		Slot:             slot,
		CurrentRange:     f[0],
		DischargeCurrent: f[1],
		CutoffVoltage:    f[2],
		CutoffCapacityAh: f[3],
		CutoffMinutes:    f[4],
	}, nil
}

func (d *SCPI) SetBatteryProfile(p models.BatteryProfile) error {
	return d.exec("set battery profile", fmt.Sprintf(":BATT %d,%sA,%sA,%sV,%sAH,%sM",
		p.Slot, num(p.CurrentRange), num(p.DischargeCurrent), num(p.CutoffVoltage),
		num(p.CutoffCapacityAh), num(p.CutoffMinutes)))
}

func (d *SCPI) OCPProfile(slot int) (models.OCPProfile, error) {
	f, err := d.queryFields("read ocp profile", fmt.Sprintf(":OCP? %d", slot), 10)
	if err != nil {
		return models.OCPProfile{}, err
	}
	return models.OCPProfile{
		Slot: slot, OnVoltage: f[0], OnDelay: f[1], CurrentRange: f[2],
		InitialCurrent: f[3], StepCurrent: f[4], StepDelay: f[5], OffCurrent: f[6],
		OCPVoltage: f[7], MaxOverCurrent: f[8], MinOverCurrent: f[9],
	}, nil
}

func (d *SCPI) SetOCPProfile(p models.OCPProfile) error {
	return d.exec("set ocp profile", fmt.Sprintf(":OCP %d,%sV,%sS,%sA,%sA,%sA,%sS,%sA,%sV,%sA,%sA",
		p.Slot, num(p.OnVoltage), num(p.OnDelay), num(p.CurrentRange), num(p.InitialCurrent),
		num(p.StepCurrent), num(p.StepDelay), num(p.OffCurrent), num(p.OCPVoltage),
		num(p.MaxOverCurrent), num(p.MinOverCurrent)))
}

func (d *SCPI) OPPProfile(slot int) (models.OPPProfile, error) {
	f, err := d.queryFields("read opp profile", fmt.Sprintf(":OPP? %d", slot), 10)
	if err != nil {
		return models.OPPProfile{}, err
	}
	return models.OPPProfile{
		Slot: slot, OnVoltage: f[0], OnDelay: f[1], CurrentRange: f[2],
		InitialPower: f[3], StepPower: f[4], StepDelay: f[5], OffPower: f[6],
		OPPVoltage: f[7], MaxOverPower: f[8], MinOverPower: f[9],
	}, nil
}

func (d *SCPI) SetOPPProfile(p models.OPPProfile) error {
	return d.exec("set opp profile", fmt.Sprintf(":OPP %d,%sV,%sS,%sA,%sW,%sW,%sS,%sW,%sV,%sW,%sW",
		p.Slot, num(p.OnVoltage), num(p.OnDelay), num(p.CurrentRange), num(p.InitialPower),
		num(p.StepPower), num(p.StepDelay), num(p.OffPower), num(p.OPPVoltage),
		num(p.MaxOverPower), num(p.MinOverPower)))
}

// ListProfile reply layout: range,count,(current,slope,duration)*count,loops
func (d *SCPI) ListProfile(slot int) (models.ListProfile, error) {
	const op = "read list profile"
	f, err := d.queryFields(op, fmt.Sprintf(":LIST? %d", slot), 0)
	if err != nil {
		return models.ListProfile{}, err
	}
	if len(f) < 3 {
		return models.ListProfile{}, errs.NewDeviceError(op, errs.KindMalformed, fmt.Errorf("short list reply (%d fields)", len(f)))
	}
	count := int(f[1])
	if len(f) != 3+count*3 {
		return models.ListProfile{}, errs.NewDeviceError(op, errs.KindMalformed, fmt.Errorf("list reply has %d fields for %d steps", len(f), count))
	}
	p := models.ListProfile{Slot: slot, CurrentRange: f[0], Loops: int(f[len(f)-1])}
	for i := 0; i < count; i++ {
		base := 2 + i*3
		p.Steps = append(p.Steps, models.ListStep{Current: f[base], Slope: f[base+1], Duration: f[base+2]})
	}
	return p, nil
}

func (d *SCPI) SetListProfile(p models.ListProfile) error {
	var b strings.Builder
	fmt.Fprintf(&b, ":LIST %d,%sA,%d", p.Slot, num(p.CurrentRange), len(p.Steps))
	for _, s := range p.Steps {
		fmt.Fprintf(&b, ",%sA,%sA/uS,%sS", num(s.Current), num(s.Slope), num(s.Duration))
	}
	fmt.Fprintf(&b, ",%d", p.Loops)
	return d.exec("set list profile", b.String())
}

func (d *SCPI) SetDynamic(p models.DynamicProfile) error {
	const op = "set dynamic profile"
	var cmd string
	switch p.Kind {
	case models.DynamicCV:
		cmd = fmt.Sprintf(":DYN 1,%sV,%sV,%sHZ,%s%%", num(p.Level1), num(p.Level2), num(p.Frequency), num(p.Duty))
	case models.DynamicCC:
		cmd = fmt.Sprintf(":DYN 2,%sA/uS,%sA/uS,%sA,%sA,%sHZ,%s%%",
			num(p.Slope1), num(p.Slope2), num(p.Level1), num(p.Level2), num(p.Frequency), num(p.Duty))
	case models.DynamicCR:
		cmd = fmt.Sprintf(":DYN 3,%sOHM,%sOHM,%sHZ,%s%%", num(p.Level1), num(p.Level2), num(p.Frequency), num(p.Duty))
	case models.DynamicCW:
		cmd = fmt.Sprintf(":DYN 4,%sW,%sW,%sHZ,%s%%", num(p.Level1), num(p.Level2), num(p.Frequency), num(p.Duty))
	case models.DynamicPulse:
		cmd = fmt.Sprintf(":DYN 5,%sA/uS,%sA/uS,%sA,%sA,%sS",
			num(p.Slope1), num(p.Slope2), num(p.Level1), num(p.Level2), num(p.Duration))
	case models.DynamicToggle:
		cmd = fmt.Sprintf(":DYN 6,%sA/uS,%sA/uS,%sA,%sA", num(p.Slope1), num(p.Slope2), num(p.Level1), num(p.Level2))
	default:
		return errs.NewDeviceError(op, errs.KindOutOfLimit, fmt.Errorf("unknown dynamic kind %q", p.Kind))
	}
	return d.exec(op, cmd)
}

func (d *SCPI) Trigger() error { return d.write("trigger", "*TRG") }

func (d *SCPI) SaveMemory(slot int) error {
	return d.exec("save memory", fmt.Sprintf("*SAV %d", slot))
}

func (d *SCPI) RecallMemory(slot int) error {
	return d.exec("recall memory", fmt.Sprintf("*RCL %d", slot))
}

func (d *SCPI) FactoryReset() error { return d.write("factory reset", "*RST") }

// Settings reads the system settings one query at a time.
func (d *SCPI) Settings() (models.DeviceSettings, error) {
	const op = "read device settings"
	var st models.DeviceSettings

	baud, err := d.queryFloat(op, ":SYST:BAUD?")
	if err != nil {
		return models.DeviceSettings{}, err
	}
	st.BaudRate = int(baud)

	switches := []struct {
		cmd string
		dst *bool
	}{
		{":SYST:BEEP?", &st.Beep},
		{":SYST:LOCK?", &st.KeyLock},
		{":SYST:EXIT?", &st.Trigger},
		{":SYST:COMP?", &st.Compensation},
		{":SYST:DHCP?", &st.DHCP},
	}
	for _, sw := range switches {
		if *sw.dst, err = d.queryBool(op, sw.cmd); err != nil {
			return models.DeviceSettings{}, err
		}
	}

	texts := []struct {
		cmd string
		dst *string
	}{
		{":SYST:IPAD?", &st.IPAddress},
		{":SYST:SMASK?", &st.SubnetMask},
		{":SYST:GATE?", &st.Gateway},
		{":SYST:MAC?", &st.MACAddress},
	}
	for _, tx := range texts {
		if *tx.dst, err = d.query(op, tx.cmd); err != nil {
			return models.DeviceSettings{}, err
		}
	}

	port, err := d.queryFloat(op, ":SYST:PORT?")
	if err != nil {
		return models.DeviceSettings{}, err
	}
	st.NetworkPort = int(port)
	return st, nil
}

// SetSettings writes every field. DHCP follows the static addresses, and
// the baud rate goes last because the line speed changes with it.
func (d *SCPI) SetSettings(st models.DeviceSettings) error {
	const op = "write device settings"
	cmds := []string{
		":SYST:BEEP " + onOff(st.Beep),
		":SYST:LOCK " + onOff(st.KeyLock),
		":SYST:EXIT " + onOff(st.Trigger),
		":SYST:COMP " + onOff(st.Compensation),
	}
	if st.IPAddress != "" {
		cmds = append(cmds,
			":SYST:IPAD "+st.IPAddress,
			":SYST:SMASK "+st.SubnetMask,
			":SYST:GATE "+st.Gateway,
		)
	}
	if st.MACAddress != "" {
		cmds = append(cmds, ":SYST:MAC "+st.MACAddress)
	}
	cmds = append(cmds,
		":SYST:PORT "+strconv.Itoa(st.NetworkPort),
		":SYST:DHCP "+onOff(st.DHCP),
	)
	for _, c := range cmds {
		if err := d.exec(op, c); err != nil {
			return err
		}
	}
	// no error-queue round trip: the reply would come at the new rate
	return d.write(op, ":SYST:BAUD "+strconv.Itoa(st.BaudRate))
}

func (d *SCPI) Close() error {
	if err := d.port.Close(); err != nil {
		return classify("close", err)
	}
	return nil
}
