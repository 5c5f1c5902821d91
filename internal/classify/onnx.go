package classify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv — глобальная инициализация ONNX Runtime, один раз на процесс.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// onnxClassifier — адаптер модели в формате ONNX: один входной тензор
// [batch, nFeatures] float32, на выходе логиты [batch, nClasses],
// метка — argmax по строке.
//
// Сам ONNX имён признаков не хранит, поэтому рядом с моделью ищется
// сайдкар <model>.features.json со списком имён. Без него
// ExpectedFeatureNames возвращает nil и выбор ложится на FallbackFeatures.
type onnxClassifier struct {
	session      *ort.DynamicAdvancedSession
	inputName    string
	outputName   string
	nFeatures    int64
	nClasses     int64
	featureNames []string
}

func newOnnxClassifier(modelPath string) (*onnxClassifier, error) {
	// Разделяемая библиотека ONNX Runtime лежит рядом с моделями
	libPath := filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: инициализация runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: чтение метаданных модели: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: ожидался один входной тензор, найдено %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: модель без выходов")
	}
	inDims := inputs[0].Dimensions
	if len(inDims) != 2 {
		return nil, fmt.Errorf("onnx: ожидался 2D входной тензор, получено %v", inDims)
	}
	outDims := outputs[0].Dimensions
	if len(outDims) != 2 {
		return nil, fmt.Errorf("onnx: ожидался 2D выходной тензор, получено %v", outDims)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: опции сессии: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(2)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: создание сессии: %w", err)
	}

	return &onnxClassifier{
		session:      session,
		inputName:    inputs[0].Name,
		outputName:   outputs[0].Name,
		nFeatures:    inDims[1],
		nClasses:     outDims[1],
		featureNames: loadFeatureSidecar(modelPath),
	}, nil
}

// loadFeatureSidecar читает <model>.features.json, если он есть.
func loadFeatureSidecar(modelPath string) []string {
	bs, err := os.ReadFile(modelPath + ".features.json")
	if err != nil {
		return nil
	}
	var names []string
	if err := json.Unmarshal(bs, &names); err != nil {
		return nil
	}
	return names
}

func (c *onnxClassifier) ExpectedFeatureNames() []string {
	if c.featureNames == nil {
		return nil
	}
	return append([]string(nil), c.featureNames...)
}

func (c *onnxClassifier) Predict(f Frame) ([]int, error) {
	batch := int64(len(f.Rows))
	if batch == 0 {
		return nil, nil
	}
	if int64(len(f.Columns)) != c.nFeatures {
		return nil, fmt.Errorf("onnx: модель ждёт %d признаков, получено %d", c.nFeatures, len(f.Columns))
	}

	flat := make([]float32, 0, batch*c.nFeatures)
	for _, row := range f.Rows {
		for _, v := range row {
			flat = append(flat, float32(v))
		}
	}

	tIn, err := ort.NewTensor(ort.NewShape(batch, c.nFeatures), flat)
	if err != nil {
		return nil, fmt.Errorf("onnx: входной тензор: %w", err)
	}
	defer tIn.Destroy()

	tOut, err := ort.NewEmptyTensor[float32](ort.NewShape(batch, c.nClasses))
	if err != nil {
		return nil, fmt.Errorf("onnx: выходной тензор: %w", err)
	}
	defer tOut.Destroy()

	if err := c.session.Run([]ort.Value{tIn}, []ort.Value{tOut}); err != nil {
		return nil, fmt.Errorf("onnx: инференс: %w", err)
	}

	logits := tOut.GetData()
	out := make([]int, batch)
	for i := int64(0); i < batch; i++ {
		best, bestVal := 0, float32(0)
		for j := int64(0); j < c.nClasses; j++ {
			v := logits[i*c.nClasses+j]
			if j == 0 || v > bestVal {
				best, bestVal = int(j), v
			}
		}
		out[i] = best
	}
	return out, nil
}

// Close освобождает ресурсы сессии.
func (c *onnxClassifier) Close() error {
	return c.session.Destroy()
}
