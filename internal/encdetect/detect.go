package encdetect

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Format — грубая классификация входного файла.
type Format string

const (
	FormatCompressed Format = "compressed"
	FormatCSV        Format = "structured_csv"
	FormatSyslog     Format = "vendor_syslog"
	FormatUnknown    Format = "unknown"
	FormatEmpty      Format = "empty"
)

// Encoding — результат определения байтовой кодировки.
type Encoding string

const (
	EncodingUTF8    Encoding = "utf-8"
	EncodingUTF16LE Encoding = "utf-16le"
	EncodingUTF16BE Encoding = "utf-16be"
	EncodingLatin   Encoding = "windows-1252"
)

const (
	sampleLines = 10
	sampleBytes = 10 * 1024
	// Доля строк с вендорской сигнатурой, начиная с которой файл считается syslog
	syslogRatio = 0.30
)

var archiveExts = map[string]struct{}{
	".gz": {}, ".zip": {}, ".bz2": {}, ".xz": {}, ".7z": {}, ".tar": {}, ".tgz": {}, ".rar": {},
}

// asaBannerRegex — сигнатура структурированного syslog Cisco ASA:
// "%ASA-4-106023: ..."
var asaBannerRegex = regexp.MustCompile(`%[A-Z]+-\d-\d+:`)

// kvTokenRegex — токены вида key=value (Fortinet и похожие форматы)
var kvTokenRegex = regexp.MustCompile(`\b[\w.]+=\S`)

var headerTokenRegex = regexp.MustCompile(`^[A-Za-z_][\w ]*$`)

// DetectFormat определяет формат файла: архив, CSV или сырой syslog.
// Никогда не возвращает ошибку — любые проблемы деградируют в FormatUnknown.
func DetectFormat(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := archiveExts[ext]; ok {
		return FormatCompressed
	}

	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown
	}
	defer f.Close()

	raw := make([]byte, sampleBytes)
	n, err := f.Read(raw)
	if n == 0 {
		return FormatEmpty
	}
	text, _ := DecodeText(raw[:n])

	var lines []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() && len(lines) < sampleLines {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return FormatEmpty
	}

	hits := 0
	for _, line := range lines {
		if asaBannerRegex.MatchString(line) || len(kvTokenRegex.FindAllString(line, 4)) >= 3 {
			hits++
		}
	}
	if float64(hits)/float64(len(lines)) > syslogRatio {
		return FormatSyslog
	}

	if looksLikeCSVHeader(lines[0]) {
		return FormatCSV
	}
	return FormatUnknown
}

// looksLikeCSVHeader: первая строка содержит разделитель, а токены
// выглядят как имена колонок (буквы, цифры, подчёркивания).
func looksLikeCSVHeader(line string) bool {
	var sep string
	switch {
	case strings.Contains(line, ","):
		sep = ","
	case strings.Contains(line, ";"):
		sep = ";"
	case strings.Contains(line, "\t"):
		sep = "\t"
	default:
		return false
	}
	parts := strings.Split(line, sep)
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		p = strings.TrimSpace(strings.Trim(p, `"`))
		if p == "" || !headerTokenRegex.MatchString(p) {
			return false
		}
	}
	return true
}

// DecodeText декодирует сырые байты в строку UTF-8, определяя кодировку
// статистически по началу буфера. При любых сомнениях — UTF-8.
func DecodeText(raw []byte) (string, Encoding) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		return decodeWith(raw, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), EncodingUTF16LE)
	case bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		return decodeWith(raw, unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder(), EncodingUTF16BE)
	}
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(raw) {
		return string(raw), EncodingUTF8
	}
	return decodeWith(raw, charmap.Windows1252.NewDecoder(), EncodingLatin)
}

// DecodeReader оборачивает поток декодером в UTF-8, определяя кодировку
// по началу буфера. В память при этом попадает только выборка, а не файл.
func DecodeReader(r io.Reader) (io.Reader, Encoding) {
	br := bufio.NewReaderSize(r, sampleBytes)
	head, _ := br.Peek(sampleBytes)
	switch {
	case bytes.HasPrefix(head, []byte{0xFF, 0xFE}):
		return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()), EncodingUTF16LE
	case bytes.HasPrefix(head, []byte{0xFE, 0xFF}):
		return transform.NewReader(br, unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()), EncodingUTF16BE
	}
	if bytes.HasPrefix(head, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
		head = head[3:]
	}
	if utf8.Valid(trimPartialRune(head)) {
		return br, EncodingUTF8
	}
	return transform.NewReader(br, charmap.Windows1252.NewDecoder()), EncodingLatin
}

// trimPartialRune отрезает хвост многобайтового символа, разрезанного
// границей выборки, чтобы он не портил проверку валидности UTF-8.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < 3 && len(b) > 0; i++ {
		if r, _ := utf8.DecodeLastRune(b); r != utf8.RuneError {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

func decodeWith(raw []byte, dec transform.Transformer, enc Encoding) (string, Encoding) {
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		// Декодер не справился — отдаем как есть, это лучший из вариантов
		return string(raw), EncodingUTF8
	}
	return string(out), enc
}
