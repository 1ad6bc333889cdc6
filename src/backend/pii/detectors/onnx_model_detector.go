package pii

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/daulet/tokenizers"
	onnxruntime "github.com/yalue/onnxruntime_go"
)

const (
	ModelFileName     = "model_quantized.onnx"
	TokenizerFileName = "tokenizer.json"
	LabelMapFileName  = "label_mappings.json"

	maxSeqLen           = 512
	windowOverlap       = 128
	minTokenConfidence  = 0.5
	onnxLibraryEnvVar   = "ONNXRUNTIME_SHARED_LIBRARY_PATH"
	defaultONNXLibrary  = "./build/libonnxruntime.so"
	ignoreLabelID       = "-100"
	outsideLabel        = "O"
	beginningPrefix     = "B-"
	insidePrefix        = "I-"
	inputIDsTensorName  = "input_ids"
	maskTensorName      = "attention_mask"
	piiLogitsTensorName = "pii_logits"
)

// ONNXModelDetector runs a token classification model through ONNX Runtime.
// Inference reuses fixed tensors, so Detect calls are serialized.
type ONNXModelDetector struct {
	mu           sync.Mutex
	tokenizer    *tokenizers.Tokenizer
	session      *onnxruntime.AdvancedSession
	inputTensor  *onnxruntime.Tensor[int64]
	maskTensor   *onnxruntime.Tensor[int64]
	outputTensor *onnxruntime.Tensor[float32]
	id2label     map[string]string
	numPIILabels int
	modelPath    string
	closed       bool
}

// safeUintToInt safely converts a uint to int with bounds checking
func safeUintToInt(val uint) int {
	const maxInt = int(^uint(0) >> 1)
	if val <= uint(maxInt) {
		// #nosec G115 - Safe conversion with bounds checking
		return int(val)
	}
	return maxInt
}

type labelMappings struct {
	PII struct {
		ID2Label map[string]string `json:"id2label"`
		Label2ID map[string]int    `json:"label2id"`
	} `json:"pii"`
}

// NewONNXModelDetector loads the model, tokenizer and label mappings from modelDir
func NewONNXModelDetector(modelDir string) (*ONNXModelDetector, error) {
	onnxLibPath := os.Getenv(onnxLibraryEnvVar)
	if onnxLibPath == "" {
		onnxLibPath = defaultONNXLibrary
	}
	onnxruntime.SetSharedLibraryPath(onnxLibPath)

	if !onnxruntime.IsInitialized() {
		if err := onnxruntime.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
		}
	}

	tk, err := tokenizers.FromFile(filepath.Join(modelDir, TokenizerFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	configData, err := os.ReadFile(filepath.Join(modelDir, LabelMapFileName))
	if err != nil {
		_ = tk.Close()
		return nil, fmt.Errorf("failed to read label mappings: %w", err)
	}

	var mappings labelMappings
	if err := json.Unmarshal(configData, &mappings); err != nil {
		_ = tk.Close()
		return nil, fmt.Errorf("failed to parse label mappings: %w", err)
	}

	numPIILabels := countLabels(mappings.PII.ID2Label)
	if numPIILabels == 0 {
		numPIILabels = len(mappings.PII.Label2ID)
	}
	if numPIILabels == 0 {
		_ = tk.Close()
		return nil, fmt.Errorf("label mappings contain no PII labels")
	}

	return &ONNXModelDetector{
		tokenizer:    tk,
		id2label:     mappings.PII.ID2Label,
		numPIILabels: numPIILabels,
		modelPath:    filepath.Join(modelDir, ModelFileName),
	}, nil
}

// countLabels returns max label id + 1, skipping the IGNORE label
func countLabels(id2label map[string]string) int {
	n := 0
	for idStr := range id2label {
		if idStr == ignoreLabelID {
			continue
		}
		if id, err := strconv.Atoi(idStr); err == nil && id >= n {
			n = id + 1
		}
	}
	return n
}

// GetName returns the name of this detector
func (d *ONNXModelDetector) GetName() string {
	return DetectorNameONNXModel
}

// Detect processes the input and returns detected entities. Inputs longer
// than the model window are processed in overlapping windows and labelled as
// one token sequence, so entities crossing a window seam stay whole.
func (d *ONNXModelDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return DetectorOutput{}, ErrDetectorClosed
	}
	if d.session == nil {
		if err := d.initializeSession(); err != nil {
			return DetectorOutput{}, fmt.Errorf("failed to initialize session: %w", err)
		}
	}

	encoding := d.tokenizer.EncodeWithOptions(input.Text, true, tokenizers.WithReturnOffsets())
	ids := encoding.IDs
	offsets := encoding.Offsets
	if len(offsets) < len(ids) {
		ids = ids[:len(offsets)]
	}

	windows := chunkTokens(ids, offsets)
	if len(windows) == 0 {
		return DetectorOutput{Text: input.Text, Entities: []Entity{}}, nil
	}

	labels := make([]tokenLabel, len(ids)-2)
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return DetectorOutput{}, err
		}
		d.updateInputTensors(w.tokenIDs)
		if err := d.session.Run(); err != nil {
			return DetectorOutput{}, fmt.Errorf("failed to run inference: %w", err)
		}
		d.labelTokens(w, labels)
	}

	return DetectorOutput{
		Text:     input.Text,
		Entities: mergeTokenLabels(input.Text, labels, offsets[1:len(ids)-1]),
	}, nil
}

// tokenWindow is one model-sized slice of the encoded text, framed by the
// tokenizer's special tokens. Neighbouring windows overlap; each content
// token is labelled by exactly one window, the one where it sits furthest
// from an edge.
type tokenWindow struct {
	tokenIDs []int64
	offsets  []tokenizers.Offset
	start    int // content index of the first non-special token
	ownFrom  int // content range [ownFrom, ownTo) labelled by this window
	ownTo    int
}

// chunkTokens splits an encoding (first and last ids are special tokens) into
// overlapping windows that fit the model input
func chunkTokens(ids []uint32, offsets []tokenizers.Offset) []tokenWindow {
	if len(ids) < 2 || len(offsets) < len(ids) {
		return nil
	}

	cls, sep := ids[0], ids[len(ids)-1]
	contentIDs := ids[1 : len(ids)-1]
	contentOffsets := offsets[1 : len(ids)-1]
	size := maxSeqLen - 2
	stride := size - windowOverlap

	var windows []tokenWindow
	for start := 0; ; start += stride {
		end := start + size
		if end > len(contentIDs) {
			end = len(contentIDs)
		}

		w := tokenWindow{
			tokenIDs: make([]int64, 0, end-start+2),
			offsets:  make([]tokenizers.Offset, 0, end-start+2),
			start:    start,
			ownFrom:  start,
			ownTo:    end,
		}
		if start > 0 {
			w.ownFrom = start + windowOverlap/2
		}
		if end < len(contentIDs) {
			w.ownTo = end - windowOverlap/2
		}
		w.tokenIDs = append(w.tokenIDs, int64(cls))
		w.offsets = append(w.offsets, tokenizers.Offset{0, 0})
		for i := start; i < end; i++ {
			w.tokenIDs = append(w.tokenIDs, int64(contentIDs[i]))
			w.offsets = append(w.offsets, contentOffsets[i])
		}
		w.tokenIDs = append(w.tokenIDs, int64(sep))
		w.offsets = append(w.offsets, tokenizers.Offset{0, 0})
		windows = append(windows, w)

		if end == len(contentIDs) {
			return windows
		}
	}
}

// tokenLabel is the model's BIO label for one content token
type tokenLabel struct {
	label      string
	confidence float64
}

// labelTokens reads the logits of the last run and fills labels for the
// content tokens the window owns
func (d *ONNXModelDetector) labelTokens(w tokenWindow, labels []tokenLabel) {
	outputData := d.outputTensor.GetData()

	for i := w.ownFrom; i < w.ownTo; i++ {
		pos := i - w.start + 1
		startIdx := pos * d.numPIILabels
		endIdx := startIdx + d.numPIILabels
		if endIdx > len(outputData) {
			break
		}

		bestClass, confidence := softmaxArgmax(outputData[startIdx:endIdx])
		label, exists := d.id2label[strconv.Itoa(bestClass)]
		if !exists || confidence < minTokenConfidence || w.offsets[pos][1] == 0 {
			label = outsideLabel
		}
		labels[i] = tokenLabel{label: label, confidence: confidence}
	}
}

type pendingEntity struct {
	label      string
	confidence float64
	tokens     []int
}

// mergeTokenLabels turns per-token labels into entities, merging B-/I- runs.
// Unset labels count as outside.
func mergeTokenLabels(text string, labels []tokenLabel, offsets []tokenizers.Offset) []Entity {
	entities := []Entity{}
	var current *pendingEntity

	flush := func() {
		if current == nil {
			return
		}
		if e, ok := finalizeEntity(current, text, offsets); ok {
			entities = append(entities, e)
		}
		current = nil
	}

	for i, tl := range labels {
		label := tl.label
		if label == "" {
			label = outsideLabel
		}

		isBeginning := strings.HasPrefix(label, beginningPrefix)
		isInside := strings.HasPrefix(label, insidePrefix)
		baseLabel := strings.TrimPrefix(strings.TrimPrefix(label, beginningPrefix), insidePrefix)

		switch {
		case label != outsideLabel && (isBeginning || current == nil):
			flush()
			current = &pendingEntity{label: baseLabel, confidence: tl.confidence, tokens: []int{i}}
		case label != outsideLabel && isInside && current != nil && current.label == baseLabel:
			current.tokens = append(current.tokens, i)
			current.confidence = (current.confidence + tl.confidence) / 2
		default:
			flush()
		}
	}
	flush()

	return entities
}

// softmaxArgmax returns the index of the largest logit and its softmax probability
func softmaxArgmax(logits []float32) (int, float64) {
	maxLogit := math.Inf(-1)
	best := 0
	for j, logit := range logits {
		if float64(logit) > maxLogit {
			maxLogit = float64(logit)
			best = j
		}
	}

	var sum float64
	for _, logit := range logits {
		sum += math.Exp(float64(logit) - maxLogit)
	}
	return best, 1 / sum
}

// finalizeEntity extracts the entity text from the original string using token offsets
func finalizeEntity(p *pendingEntity, text string, offsets []tokenizers.Offset) (Entity, bool) {
	if len(p.tokens) == 0 {
		return Entity{}, false
	}
	start := safeUintToInt(offsets[p.tokens[0]][0])
	end := safeUintToInt(offsets[p.tokens[len(p.tokens)-1]][1])
	if start >= end || end > len(text) {
		return Entity{}, false
	}

	return Entity{
		Text:       text[start:end],
		Label:      ParseEntityKind(p.label),
		StartPos:   start,
		EndPos:     end,
		Confidence: p.confidence,
	}, true
}

// initializeSession initializes the ONNX session and tensors
func (d *ONNXModelDetector) initializeSession() error {
	inputShape := onnxruntime.NewShape(1, maxSeqLen)
	inputTensor, err := onnxruntime.NewTensor(inputShape, make([]int64, maxSeqLen))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}

	maskTensor, err := onnxruntime.NewTensor(inputShape, make([]int64, maxSeqLen))
	if err != nil {
		_ = inputTensor.Destroy()
		return fmt.Errorf("failed to create mask tensor: %w", err)
	}

	outputShape := onnxruntime.NewShape(1, maxSeqLen, int64(d.numPIILabels))
	outputTensor, err := onnxruntime.NewEmptyTensor[float32](outputShape)
	if err != nil {
		_ = inputTensor.Destroy()
		_ = maskTensor.Destroy()
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := onnxruntime.NewAdvancedSession(d.modelPath,
		[]string{inputIDsTensorName, maskTensorName},
		[]string{piiLogitsTensorName},
		[]onnxruntime.Value{inputTensor, maskTensor},
		[]onnxruntime.Value{outputTensor},
		nil)
	if err != nil {
		_ = inputTensor.Destroy()
		_ = maskTensor.Destroy()
		_ = outputTensor.Destroy()
		return fmt.Errorf("failed to create session: %w", err)
	}

	d.session = session
	d.inputTensor = inputTensor
	d.maskTensor = maskTensor
	d.outputTensor = outputTensor
	return nil
}

// updateInputTensors zero-pads the fixed-size input tensors with the window ids
func (d *ONNXModelDetector) updateInputTensors(inputIDs []int64) {
	inputData := d.inputTensor.GetData()
	maskData := d.maskTensor.GetData()

	for i := range inputData {
		inputData[i] = 0
		maskData[i] = 0
	}
	copy(inputData, inputIDs)
	for i := 0; i < len(inputIDs) && i < len(maskData); i++ {
		maskData[i] = 1
	}
}

// Close implements the Detector interface
func (d *ONNXModelDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy session: %w", err))
		}
		d.session = nil
	}
	if d.inputTensor != nil {
		if err := d.inputTensor.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy input tensor: %w", err))
		}
		d.inputTensor = nil
	}
	if d.maskTensor != nil {
		if err := d.maskTensor.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy mask tensor: %w", err))
		}
		d.maskTensor = nil
	}
	if d.outputTensor != nil {
		if err := d.outputTensor.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy output tensor: %w", err))
		}
		d.outputTensor = nil
	}
	if d.tokenizer != nil {
		if err := d.tokenizer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close tokenizer: %w", err))
		}
		d.tokenizer = nil
	}
	d.closed = true

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
