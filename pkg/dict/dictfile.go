package dict

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// sizeLimit guards against parsing large field files as dictionaries.
const sizeLimit = 10 << 20

// ErrFileTooLarge is returned when an input file exceeds the parse size limit.
var ErrFileTooLarge = fmt.Errorf("input file exceeds %d byte parse limit", sizeLimit)

// propSpec describes one standard entry of a typed input file: its default
// value (nil means no default) and the allowed options, if restricted.
type propSpec struct {
	name    string
	value   any
	options []string
}

// File is a Caelus/OpenFOAM input file: a FoamFile header plus the body
// dictionary, tied to a location relative to the case directory.
type File struct {
	Filename string
	Header   *Dict
	Data     *Dict

	props []propSpec
}

// NewFile creates an in-memory input file with a default header.
func NewFile(filename string) *File {
	f := &File{Filename: filename, Data: New()}
	f.Header = f.defaultHeader()
	return f
}

func (f *File) defaultHeader() *Dict {
	h := FromPairs(
		"version", "2.0",
		"format", "ascii",
		"class", "dictionary",
	)
	if dir := filepath.Dir(f.Filename); dir != "." && dir != "" {
		h.Set("location", Literal(dir))
	}
	h.Set("object", Literal(filepath.Base(f.Filename)))
	return h
}

// Load reads and parses an input file from disk. The FoamFile sub-dictionary
// is split out into the header.
func Load(filename string) (*File, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return nil, fmt.Errorf("loading input file: %w", err)
	}
	if info.Size() > sizeLimit {
		return nil, fmt.Errorf("%s: %w", filename, ErrFileTooLarge)
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("loading input file: %w", err)
	}
	data, err := Parse(string(raw), filename)
	if err != nil {
		return nil, err
	}
	f := &File{Filename: filename, Data: data}
	if hdr, ok := data.Pop("FoamFile"); ok {
		if hd, isDict := hdr.(*Dict); isDict {
			f.Header = hd
		}
	}
	if f.Header == nil {
		f.Header = f.defaultHeader()
	}
	return f, nil
}

// ReadIfPresent loads filename relative to casedir when it exists, or
// returns an empty file object for it otherwise.
func ReadIfPresent(casedir, filename string) (*File, error) {
	path := filepath.Join(casedir, filename)
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	return NewFile(path), nil
}

// Write emits the formatted input file. An empty filename reuses the path
// the file was created with.
func (f *File) Write(filename string) error {
	if filename == "" {
		filename = f.Filename
	}
	f.Filename = filename
	fh, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("writing input file: %w", err)
	}
	defer fh.Close()
	slog.Info("Writing Caelus input file", "file", filename)
	if err := Write(fh, f.defaultHeader(), f.Data); err != nil {
		return err
	}
	return fh.Close()
}

// Set stores an entry, validating it against the option table of typed files.
func (f *File) Set(key string, value any) error {
	for _, p := range f.props {
		if p.name != key || len(p.options) == 0 {
			continue
		}
		sval := formatValue(value)
		for _, opt := range p.options {
			if sval == opt {
				f.Data.Set(key, value)
				return nil
			}
		}
		return fmt.Errorf("%s: invalid option %q for %s (allowed: %v)",
			filepath.Base(f.Filename), sval, key, p.options)
	}
	f.Data.Set(key, value)
	return nil
}

// Get returns an entry from the file body.
func (f *File) Get(key string) (any, bool) { return f.Data.Get(key) }

// GetString returns an entry rendered as a bare token string.
func (f *File) GetString(key string) string { return f.Data.GetString(key) }

// Merge merges entries from the given dictionaries into the file body.
func (f *File) Merge(others ...*Dict) { f.Data.Merge(others...) }

func (f *File) applyDefaults(props []propSpec) {
	f.props = props
	for _, p := range props {
		if p.value != nil {
			f.Data.Set(p.name, p.value)
		}
	}
}

func typedFile(filename string, props []propSpec) *File {
	f := NewFile(filename)
	f.applyDefaults(props)
	return f
}

func typedLoad(casedir, filename string, props []propSpec) (*File, error) {
	f, err := ReadIfPresent(casedir, filename)
	if err != nil {
		return nil, err
	}
	f.props = props
	if f.Data.Len() == 0 {
		f.applyDefaults(props)
	}
	return f, nil
}

var controlDictProps = []propSpec{
	{name: "application", value: "pisoSolver"},
	{name: "startFrom", value: "latestTime",
		options: []string{"firstTime", "startTime", "latestTime"}},
	{name: "startTime", value: int64(0)},
	{name: "stopAt", value: "endTime",
		options: []string{"endTime", "writeNow", "noWriteNow", "nextWrite"}},
	{name: "endTime"},
	{name: "deltaT"},
	{name: "writeControl", value: "timeStep",
		options: []string{"timeStep", "runTime", "adjustableRunTime", "cpuTime", "clockTime"}},
	{name: "writeInterval"},
	{name: "purgeWrite", value: int64(0)},
	{name: "writeFormat", value: "ascii", options: []string{"ascii", "binary"}},
	{name: "writePrecision", value: int64(6)},
	{name: "writeCompression", value: true},
	{name: "timeFormat", value: "general",
		options: []string{"fixed", "scientific", "general"}},
	{name: "timePrecision", value: int64(6)},
	{name: "graphFormat"},
	{name: "adjustTimeStep"},
	{name: "maxCo"},
	{name: "runTimeModifiable", value: true},
}

// ControlDictPath is the case-relative location of the run control file.
const ControlDictPath = "system/controlDict"

// NewControlDict creates a system/controlDict with standard defaults.
func NewControlDict() *File { return typedFile(ControlDictPath, controlDictProps) }

// LoadControlDict reads a case's controlDict, or returns defaults when absent.
func LoadControlDict(casedir string) (*File, error) {
	return typedLoad(casedir, ControlDictPath, controlDictProps)
}

var decomposeParProps = []propSpec{
	{name: "numberOfSubdomains", value: int64(4)},
	{name: "method", value: "scotch",
		options: []string{"scotch", "metis", "simple", "hierarchical", "manual"}},
}

// DecomposeParPath is the case-relative location of the decomposition file.
const DecomposeParPath = "system/decomposeParDict"

// NewDecomposeParDict creates a system/decomposeParDict with defaults.
func NewDecomposeParDict() *File { return typedFile(DecomposeParPath, decomposeParProps) }

// LoadDecomposeParDict reads a case's decomposeParDict if present.
func LoadDecomposeParDict(casedir string) (*File, error) {
	return typedLoad(casedir, DecomposeParPath, decomposeParProps)
}

var transportProps = []propSpec{
	{name: "transportModel", value: "Newtonian"},
}

// NewTransportProperties creates a constant/transportProperties file.
func NewTransportProperties() *File {
	return typedFile("constant/transportProperties", transportProps)
}

var turbulenceProps = []propSpec{
	{name: "simulationType", value: "laminar",
		options: []string{"laminar", "RASModel", "LESModel"}},
}

// NewTurbulenceProperties creates a constant/turbulenceProperties file.
func NewTurbulenceProperties() *File {
	return typedFile("constant/turbulenceProperties", turbulenceProps)
}

var turbModelProps = []propSpec{
	{name: "turbulence", value: "on", options: []string{"on", "off", "yes", "no", "true", "false"}},
	{name: "printCoeffs", value: "on", options: []string{"on", "off", "yes", "no", "true", "false"}},
}

// TurbModelFile wraps RASProperties/LESProperties files, exposing the
// model entry and its coefficient sub-dictionary.
type TurbModelFile struct {
	*File
	modelKey string
}

// NewRASProperties creates a constant/RASProperties file.
func NewRASProperties() *TurbModelFile {
	return &TurbModelFile{
		File:     typedFile("constant/RASProperties", turbModelProps),
		modelKey: "RASModel",
	}
}

// NewLESProperties creates a constant/LESProperties file with the default
// cubeRootVol delta entries.
func NewLESProperties() *TurbModelFile {
	t := &TurbModelFile{
		File:     typedFile("constant/LESProperties", turbModelProps),
		modelKey: "LESModel",
	}
	t.SetDelta("cubeRootVol")
	return t
}

// Model returns the configured turbulence model name.
func (t *TurbModelFile) Model() string { return t.Data.GetString(t.modelKey) }

// SetModel sets the turbulence model and materializes its coefficient
// sub-dictionary.
func (t *TurbModelFile) SetModel(name string) {
	t.Data.Set(t.modelKey, name)
	t.Coeffs()
}

// Coeffs returns the <model>Coeffs sub-dictionary, creating it on demand.
func (t *TurbModelFile) Coeffs() *Dict {
	key := t.Data.GetString(t.modelKey) + "Coeffs"
	if sub := t.Data.GetDict(key); sub != nil {
		return sub
	}
	sub := New()
	t.Data.Set(key, sub)
	return sub
}

// SetDelta sets the LES filter width model and seeds its coefficients.
func (t *TurbModelFile) SetDelta(value string) {
	t.Data.Set("delta", value)
	key := value + "Coeffs"
	if t.Data.GetDict(key) == nil {
		coeffs := New()
		if value == "cubeRootVol" {
			coeffs.Set("deltaCoeff", int64(1))
		}
		t.Data.Set(key, coeffs)
	}
}
