package classify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// SentinelValue подставляется в колонки, которых нет в данных,
// но которые ожидает модель.
const SentinelValue = -1.0

// Classifier — узкий интерфейс обученной модели: одно обязательное
// предсказание и необязательные имена признаков. Никакого прощупывания
// атрибутов по месту — адаптер каждой библиотеки реализует интерфейс явно.
type Classifier interface {
	Predict(f Frame) ([]int, error)
	// ExpectedFeatureNames возвращает nil, если модель не знает своих признаков.
	ExpectedFeatureNames() []string
}

// LoadClassifier — единственный шов загрузки моделей. Все шимы
// совместимости с форматами живут за ним, а не по всему конвейеру.
func LoadClassifier(path string) (Classifier, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".onnx":
		return newOnnxClassifier(path)
	case ".json":
		return loadRuleClassifier(path)
	default:
		return nil, fmt.Errorf("неподдерживаемый формат модели: %s", path)
	}
}

// PredictBinary выравнивает фрейм под схему модели и предсказывает is_attack.
// Если модель не отдаёт имена признаков и fallback не задан — это ошибка
// конфигурации, а не повод что-то угадывать.
func PredictBinary(f Frame, clf Classifier, fallback []string, lg *zap.Logger) ([]int, error) {
	names := clf.ExpectedFeatureNames()
	if names == nil {
		names = fallback
	}
	if names == nil {
		return nil, fmt.Errorf("модель не отдаёт имена признаков и FallbackFeatures не задан")
	}
	aligned, filled := Reindex(f, names, SentinelValue)
	if len(filled) > 0 {
		lg.Warn("Отсутствующие колонки заполнены sentinel-значением",
			zap.Strings("columns", filled))
	}
	return clf.Predict(aligned)
}

// PredictMulticlass предсказывает уровень риска только для строк с маской
// (is_attack=1). Строки вне маски получают 0 — «уровень не присвоен».
func PredictMulticlass(f Frame, clf Classifier, fallback []string, mask []bool, lg *zap.Logger) ([]int, error) {
	sub := Subframe(f, mask)
	out := make([]int, len(f.Rows))
	if len(sub.Rows) == 0 {
		return out, nil
	}
	labels, err := PredictBinary(sub, clf, fallback, lg)
	if err != nil {
		return nil, err
	}
	j := 0
	for i := range f.Rows {
		if i < len(mask) && mask[i] {
			out[i] = labels[j]
			j++
		}
	}
	return out, nil
}

// WriteSummary пишет распределение меток в каталог результатов.
// Побочный артефакт для UI, ошибки сюда не поднимаются выше предупреждения.
func WriteSummary(outputDir string, binary, multiclass []int) (string, error) {
	summary := struct {
		Binary     map[int]int `json:"binary"`
		Multiclass map[int]int `json:"multiclass"`
	}{
		Binary:     countLabels(binary),
		Multiclass: countLabels(multiclass),
	}
	bs, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, "classification_summary.json")
	if err := os.WriteFile(path, bs, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func countLabels(labels []int) map[int]int {
	out := make(map[int]int)
	for _, l := range labels {
		out[l]++
	}
	return out
}

// --- Правиловый классификатор (.json) ---

// ruleSpec — дистиллированная модель: упорядоченный список условий,
// первое сработавшее даёт метку.
type ruleSpec struct {
	FeatureNames []string   `json:"feature_names"`
	Rules        []ruleCond `json:"rules"`
	DefaultLabel int        `json:"default_label"`
}

type ruleCond struct {
	Feature string  `json:"feature"`
	Op      string  `json:"op"` // "<=", "<", ">=", ">", "=="
	Value   float64 `json:"value"`
	Label   int     `json:"label"`
}

type ruleClassifier struct {
	spec ruleSpec
	cols map[string]int
}

func loadRuleClassifier(path string) (*ruleClassifier, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	var spec ruleSpec
	if err := json.Unmarshal(bs, &spec); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if len(spec.FeatureNames) == 0 {
		return nil, fmt.Errorf("model %s: feature_names пуст", path)
	}
	cols := make(map[string]int, len(spec.FeatureNames))
	for i, n := range spec.FeatureNames {
		cols[strings.ToLower(n)] = i
	}
	for _, r := range spec.Rules {
		if _, ok := cols[strings.ToLower(r.Feature)]; !ok {
			return nil, fmt.Errorf("model %s: правило ссылается на неизвестный признак %q", path, r.Feature)
		}
	}
	return &ruleClassifier{spec: spec, cols: cols}, nil
}

func (c *ruleClassifier) ExpectedFeatureNames() []string {
	return append([]string(nil), c.spec.FeatureNames...)
}

func (c *ruleClassifier) Predict(f Frame) ([]int, error) {
	if len(f.Columns) != len(c.spec.FeatureNames) {
		return nil, fmt.Errorf("ожидалось %d колонок, получено %d", len(c.spec.FeatureNames), len(f.Columns))
	}
	out := make([]int, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = c.spec.DefaultLabel
		for _, r := range c.spec.Rules {
			v := row[c.cols[strings.ToLower(r.Feature)]]
			if condHolds(v, r.Op, r.Value) {
				out[i] = r.Label
				break
			}
		}
	}
	return out, nil
}

func condHolds(v float64, op string, ref float64) bool {
	switch op {
	case "<=":
		return v <= ref
	case "<":
		return v < ref
	case ">=":
		return v >= ref
	case ">":
		return v > ref
	case "==":
		return v == ref
	default:
		return false
	}
}
