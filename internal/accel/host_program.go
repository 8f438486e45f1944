package accel

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	entryPointPattern = regexp.MustCompile(`__kernel\s+void\s+(\w+)\s*\(([^)]*)\)`)
	definePattern     = regexp.MustCompile(`(?m)^[ \t]*#[ \t]*define[ \t]+(\w+)[ \t]+(\S+)`)
)

// BuildProgram checks the source for kernel entry points and resolves the
// preprocessor defines visible to host kernels. Defines passed with -D in
// options take precedence over #define lines of the source.
func (c *hostContext) BuildProgram(source []byte, devices []Device, options string) (Program, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("build program: %w", ErrInvalidDevice)
	}
	members := make([]*hostDevice, 0, len(devices))
	for _, d := range devices {
		hd, err := c.member(d)
		if err != nil {
			return nil, err
		}
		members = append(members, hd)
	}

	prog, diagnostics := parseHostProgram(string(source), options)
	if len(diagnostics) > 0 {
		logs := make(map[string]string, len(members))
		for _, d := range members {
			logs[d.Info().Name] = strings.Join(diagnostics, "\n")
		}
		c.platform.logger.Debug("program build failed", zap.Int("diagnostics", len(diagnostics)))
		return nil, &BuildError{Logs: logs}
	}
	prog.platform = c.platform

	entries := make([]string, 0, len(prog.entries))
	for name := range prog.entries {
		entries = append(entries, name)
	}
	c.platform.logger.Debug("program built",
		zap.Strings("entry_points", entries),
		zap.Int("devices", len(members)))
	return prog, nil
}

func parseHostProgram(src, options string) (*hostProgram, []string) {
	var diagnostics []string
	prog := &hostProgram{
		entries: make(map[string]int),
		defines: make(map[string]string),
	}

	for _, m := range definePattern.FindAllStringSubmatch(src, -1) {
		prog.defines[m[1]] = m[2]
	}

	fields := strings.Fields(options)
	for i := 0; i < len(fields); i++ {
		opt := fields[i]
		switch {
		case opt == "-D" && i+1 < len(fields):
			i++
			setDefine(prog.defines, fields[i])
		case strings.HasPrefix(opt, "-D") && len(opt) > 2:
			setDefine(prog.defines, opt[2:])
		case strings.HasPrefix(opt, "-cl-"), opt == "-w", opt == "-Werror":
		default:
			diagnostics = append(diagnostics, fmt.Sprintf("error: invalid build option %q", opt))
		}
	}

	if strings.Count(src, "{") != strings.Count(src, "}") {
		diagnostics = append(diagnostics, "error: unbalanced braces in program source")
	}

	for _, m := range entryPointPattern.FindAllStringSubmatch(src, -1) {
		params := strings.TrimSpace(m[2])
		argc := 0
		if params != "" && params != "void" {
			argc = len(strings.Split(params, ","))
		}
		if _, dup := prog.entries[m[1]]; dup {
			diagnostics = append(diagnostics, fmt.Sprintf("error: redefinition of kernel %q", m[1]))
			continue
		}
		prog.entries[m[1]] = argc
	}
	if len(prog.entries) == 0 && len(diagnostics) == 0 {
		diagnostics = append(diagnostics, "error: no __kernel entry points in program source")
	}
	return prog, diagnostics
}

func setDefine(defines map[string]string, def string) {
	name, value, ok := strings.Cut(def, "=")
	if !ok {
		value = "1"
	}
	defines[name] = value
}

type hostProgram struct {
	platform *HostPlatform
	entries  map[string]int
	defines  map[string]string
	released atomic.Bool
}

func (p *hostProgram) CreateKernel(name string) (Kernel, error) {
	if p.released.Load() {
		return nil, fmt.Errorf("create kernel %q: %w", name, ErrReleased)
	}
	argc, ok := p.entries[name]
	if !ok {
		return nil, fmt.Errorf("program has no entry point %q: %w", name, ErrInvalidKernelName)
	}
	fn, ok := p.platform.kernels[name]
	if !ok {
		return nil, fmt.Errorf("no host implementation of kernel %q: %w", name, ErrInvalidKernelName)
	}
	return &hostKernel{
		name:    name,
		fn:      fn,
		program: p,
		args:    make([]any, argc),
	}, nil
}

func (p *hostProgram) Release() error {
	if !p.released.CompareAndSwap(false, true) {
		return fmt.Errorf("release program: %w", ErrReleased)
	}
	return nil
}

type hostKernel struct {
	name     string
	fn       HostKernelFunc
	program  *hostProgram
	args     []any
	released atomic.Bool
}

func (k *hostKernel) Name() string {
	return k.name
}

func (k *hostKernel) SetArg(index int, value any) error {
	if k.released.Load() {
		return fmt.Errorf("set argument of %q: %w", k.name, ErrReleased)
	}
	if index < 0 || index >= len(k.args) {
		return fmt.Errorf("kernel %q takes %d arguments, got index %d: %w", k.name, len(k.args), index, ErrInvalidArgIndex)
	}
	switch v := value.(type) {
	case int32:
	case Buffer:
		if _, err := asHostBuffer(v); err != nil {
			return fmt.Errorf("argument %d of %q: %w", index, k.name, err)
		}
	default:
		return fmt.Errorf("argument %d of %q has unsupported type %T: %w", index, k.name, value, ErrInvalidArgValue)
	}
	k.args[index] = value
	return nil
}

func (k *hostKernel) Release() error {
	if !k.released.CompareAndSwap(false, true) {
		return fmt.Errorf("release kernel %q: %w", k.name, ErrReleased)
	}
	return nil
}

// snapshot copies the bound arguments so later SetArg calls do not affect a
// launch that is already queued.
func (k *hostKernel) snapshot() ([]any, error) {
	args := make([]any, len(k.args))
	for i, a := range k.args {
		if a == nil {
			return nil, fmt.Errorf("argument %d of %q: %w", i, k.name, ErrInvalidKernelArgs)
		}
		args[i] = a
	}
	return args, nil
}
