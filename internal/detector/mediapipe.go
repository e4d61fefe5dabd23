package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/bodydetect/internal/frame"
)

// Service script names searched for when Config leaves them empty.
const (
	PoseScriptName    = "pose_service.py"
	SegmentScriptName = "segment_service.py"
)

// service runs one Python MediaPipe process and exchanges frames with it.
//
// Request:  width, height, length as 4-byte big-endian integers, followed
// by length bytes of BGR24 pixels.
// Response: one JSON line.
type service struct {
	name        string
	python      string
	script      string
	args        []string
	idleTimeout time.Duration

	// mu serializes calls and process lifecycle. It is held for the whole
	// exchange with the process, which may never answer.
	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	idleTimer *time.Timer

	// closed and proc are read without mu so a hung call can be broken.
	closed atomic.Bool
	procMu sync.Mutex
	proc   *os.Process
}

func newService(name, script string, args []string, config Config) (*service, error) {
	if script == "" {
		script = findServiceScript(name)
	}
	if script == "" {
		return nil, fmt.Errorf("%s not found", name)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	python := config.PythonPath
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	idle := config.IdleTimeout
	if idle <= 0 {
		idle = DefaultConfig().IdleTimeout
	}

	return &service{
		name:        name,
		python:      python,
		script:      script,
		args:        args,
		idleTimeout: idle,
	}, nil
}

// call sends one frame and decodes the JSON reply into out. Cancelling ctx
// kills the process so the call returns.
func (s *service) call(ctx context.Context, f *frame.Frame, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.ensureStarted(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { s.kill() })
	defer stop()

	pixels := f.Pixels()
	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[0:4], uint32(f.Width()))
	binary.BigEndian.PutUint32(header[4:8], uint32(f.Height()))
	binary.BigEndian.PutUint32(header[8:12], uint32(len(pixels)))

	if _, err := s.stdin.Write(header); err != nil {
		return s.broken(ctx, fmt.Errorf("write header: %w", err))
	}
	if _, err := s.stdin.Write(pixels); err != nil {
		return s.broken(ctx, fmt.Errorf("write pixels: %w", err))
	}

	line, err := s.stdout.ReadBytes('\n')
	if err != nil {
		return s.broken(ctx, fmt.Errorf("read response: %w", err))
	}

	if err := json.Unmarshal(line, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	s.resetIdleTimer()
	return nil
}

// broken resets the process after a failed exchange and reports why it
// failed. Callers hold mu.
func (s *service) broken(ctx context.Context, err error) error {
	s.reset()
	switch {
	case s.closed.Load():
		return ErrClosed
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return err
}

// close stops the process. A call blocked on an unresponsive process is
// broken by killing it.
func (s *service) close() error {
	s.closed.Store(true)
	if s.mu.TryLock() {
		defer s.mu.Unlock()
		return s.shutdown()
	}

	s.kill()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.shutdown(); err != nil {
		log.WithField("service", s.name).WithError(err).Debug("Detector service killed")
	}
	return nil
}

// kill terminates the running process, if any, without taking mu.
func (s *service) kill() {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	if s.proc != nil {
		s.proc.Kill()
	}
}

func (s *service) ensureStarted() error {
	if s.started {
		return nil
	}

	args := append([]string{s.script}, s.args...)
	s.cmd = exec.Command(s.python, args...)

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Service diagnostics go straight to our stderr.
	s.cmd.Stderr = os.Stderr

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.name, err)
	}

	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	s.started = true

	s.procMu.Lock()
	s.proc = s.cmd.Process
	// A close that raced with the start found no process to kill.
	if s.closed.Load() {
		s.proc.Kill()
	}
	s.procMu.Unlock()

	log.WithField("service", s.name).Info("Detector service started")
	return nil
}

// reset kills a process whose pipe broke so the next call starts a fresh one.
func (s *service) reset() {
	s.kill()
	if err := s.shutdown(); err != nil {
		log.WithField("service", s.name).WithError(err).Debug("Detector service exited")
	}
}

func (s *service) shutdown() error {
	if !s.started {
		return nil
	}

	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}

	if s.stdin != nil {
		s.stdin.Close()
	}

	err := s.cmd.Wait()
	s.procMu.Lock()
	s.proc = nil
	s.procMu.Unlock()
	s.started = false
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil

	log.WithField("service", s.name).Info("Detector service stopped")
	return err
}

func (s *service) resetIdleTimer() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.idleTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.shutdown()
	})
}

// MediaPipePoseDetector implements PoseDetector using a Python MediaPipe subprocess.
type MediaPipePoseDetector struct {
	svc *service
}

// NewMediaPipePoseDetector creates a pose detector.
// The Python process is started lazily on first detection.
func NewMediaPipePoseDetector(config Config) (*MediaPipePoseDetector, error) {
	mode := "single"
	if config.StreamMode {
		mode = "stream"
	}
	args := []string{
		"--mode", mode,
		"--min-confidence", strconv.FormatFloat(config.MinConfidence, 'f', -1, 64),
	}
	svc, err := newService(PoseScriptName, config.PoseScript, args, config)
	if err != nil {
		return nil, err
	}
	return &MediaPipePoseDetector{svc: svc}, nil
}

// DetectPose implements PoseDetector.
func (d *MediaPipePoseDetector) DetectPose(ctx context.Context, f *frame.Frame) (*Pose, error) {
	var response struct {
		Pose  *jsonPose `json:"pose"`
		Error string    `json:"error"`
	}
	if err := d.svc.call(ctx, f, &response); err != nil {
		return nil, err
	}
	if response.Error != "" {
		return nil, errors.New(response.Error)
	}
	if response.Pose == nil {
		return nil, nil
	}
	return response.Pose.toPose()
}

// Close shuts down the Python process.
func (d *MediaPipePoseDetector) Close() error {
	return d.svc.close()
}

// MediaPipeSegmenter implements Segmenter using a Python MediaPipe subprocess.
type MediaPipeSegmenter struct {
	svc *service
}

// NewMediaPipeSegmenter creates a selfie segmenter.
// The Python process is started lazily on first use.
func NewMediaPipeSegmenter(config Config) (*MediaPipeSegmenter, error) {
	svc, err := newService(SegmentScriptName, config.SegmentScript, nil, config)
	if err != nil {
		return nil, err
	}
	return &MediaPipeSegmenter{svc: svc}, nil
}

// Segment implements Segmenter.
func (s *MediaPipeSegmenter) Segment(ctx context.Context, f *frame.Frame) (*Mask, error) {
	var response struct {
		Mask  *Mask  `json:"mask"`
		Error string `json:"error"`
	}
	if err := s.svc.call(ctx, f, &response); err != nil {
		return nil, err
	}
	if response.Error != "" {
		return nil, errors.New(response.Error)
	}
	if response.Mask == nil {
		return nil, nil
	}
	if err := response.Mask.Validate(); err != nil {
		return nil, err
	}
	return response.Mask, nil
}

// Close shuts down the Python process.
func (s *MediaPipeSegmenter) Close() error {
	return s.svc.close()
}

func findServiceScript(name string) string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", name),
		filepath.Join("..", "scripts", name),
		filepath.Join(execDir, "scripts", name),
		filepath.Join(os.Getenv("HOME"), ".bodydetect", "scripts", name),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".bodydetect/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonPose is the pose shape sent by the Python service.
type jsonPose struct {
	Landmarks []jsonLandmark `json:"landmarks"`
}

type jsonLandmark struct {
	Type       int     `json:"type"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

func (p jsonPose) toPose() (*Pose, error) {
	pose := &Pose{Landmarks: make([]Landmark, 0, len(p.Landmarks))}
	for _, l := range p.Landmarks {
		t := LandmarkType(l.Type)
		if !t.Valid() {
			return nil, fmt.Errorf("unknown landmark type %d", l.Type)
		}
		pose.Landmarks = append(pose.Landmarks, Landmark{
			Type:              t,
			Position:          Point3D{X: l.X, Y: l.Y, Z: l.Z},
			InFrameLikelihood: l.Visibility,
		})
	}
	return pose, nil
}
