package ai

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"videocounter/internal/config"
	"videocounter/internal/logger"
	"videocounter/internal/model"
	"videocounter/internal/service/ai/postprocess"
	"videocounter/internal/service/frame"
	"videocounter/internal/service/video"
)

// ErrNotInitialized is returned by Detect when no network could be loaded.
var ErrNotInitialized = errors.New("detection network not initialized")

type modelKind int

const (
	kindYOLO modelKind = iota
	kindSSD
)

// SSD graphs take a fixed 300x300 input.
const ssdInputSize = 300

// DetectorService runs object detection with an OpenCV DNN network. It accepts
// frames produced by the video package.
type DetectorService struct {
	net        gocv.Net
	loaded     bool
	kind       modelKind
	inputSize  int
	nms        float64
	modelPath  string
	configPath string
	logger     *logger.Logger

	// A gocv.Net is not safe for concurrent Forward calls.
	mu sync.Mutex
}

// NewDetectorService creates a detector for the configured model.
// A network that fails to load is logged and reported by Ready and Detect.
func NewDetectorService(cfg *config.Config, log *logger.Logger) *DetectorService {
	s := &DetectorService{
		inputSize:  cfg.InputSize,
		nms:        cfg.NMSThreshold,
		modelPath:  cfg.ModelPath,
		configPath: cfg.ModelConfigPath,
		logger:     log,
	}
	if s.nms <= 0 {
		s.nms = postprocess.DefaultIoUThreshold
	}

	if err := s.initializeNet(); err != nil {
		s.logger.Warning("Could not initialize detection network: %v", err)
	}
	return s
}

// initializeNet loads the network and sets backend/target preferences. ONNX
// files are treated as YOLO heads; anything else needs a graph config (SSD).
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); err != nil {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}

	var net gocv.Net
	if strings.EqualFold(filepath.Ext(s.modelPath), ".onnx") {
		s.kind = kindYOLO
		net = gocv.ReadNetFromONNX(s.modelPath)
	} else {
		if _, err := os.Stat(s.configPath); err != nil {
			return fmt.Errorf("config file not found: %q", s.configPath)
		}
		s.kind = kindSSD
		net = gocv.ReadNet(s.modelPath, s.configPath)
	}
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", s.modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target: %w", errors.Join(errBackend, errTarget))
	}

	s.net = net
	s.loaded = true
	s.logger.Info("Detection network initialized: %s", filepath.Base(s.modelPath))
	return nil
}

// Ready reports whether a network is loaded.
func (s *DetectorService) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Detect runs the network on one frame and returns detections of the requested
// classes scoring at least threshold, after per-class NMS. The frame is only read.
func (s *DetectorService) Detect(img frame.Image, classes []int, threshold float64) ([]model.Detection, error) {
	if err := model.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	mat, err := video.AsMat(img)
	if err != nil {
		return nil, err
	}

	req := postprocess.Request{
		Frame:     img.Bounds(),
		Classes:   make(map[int]bool, len(classes)),
		Threshold: threshold,
	}
	for _, id := range classes {
		req.Classes[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, ErrNotInitialized
	}

	var dets []model.Detection
	switch s.kind {
	case kindSSD:
		dets, err = s.forwardSSD(mat, req)
	default:
		dets, err = s.forwardYOLO(mat, req)
	}
	if err != nil {
		return nil, err
	}
	return postprocess.NMS(postprocess.Valid(dets), s.nms), nil
}

func (s *DetectorService) forwardYOLO(mat gocv.Mat, req postprocess.Request) ([]model.Detection, error) {
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(s.inputSize, s.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	// [1, 4+C, N]
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected YOLO output dims %v", sizes)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}
	return postprocess.DecodeYOLO(data, sizes[1], sizes[2], s.inputSize, req)
}

func (s *DetectorService) forwardSSD(mat gocv.Mat, req postprocess.Request) ([]model.Detection, error) {
	// Parameters that fit the SSD COCO net input
	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(ssdInputSize, ssdInputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}
	return postprocess.DecodeSSD(data, req)
}

// Close releases the network.
func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil
	}
	s.loaded = false
	return s.net.Close()
}

// Pool holds one detector per processing worker.
type Pool []*DetectorService

// NewPool loads n independent networks.
func NewPool(cfg *config.Config, log *logger.Logger, n int) Pool {
	pool := make(Pool, n)
	for i := range pool {
		pool[i] = NewDetectorService(cfg, log.With("detector", i))
	}
	return pool
}

// Ready reports whether every detector has a network.
func (p Pool) Ready() bool {
	for _, d := range p {
		if !d.Ready() {
			return false
		}
	}
	return len(p) > 0
}

func (p Pool) Close() error {
	var errs []error
	for _, d := range p {
		errs = append(errs, d.Close())
	}
	return errors.Join(errs...)
}
