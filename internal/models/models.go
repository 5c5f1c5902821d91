package models

// RawLogLine — одна сырая строка лога вместе с источником.
// Живёт только между чтением файла и парсером, никуда не сохраняется.
type RawLogLine struct {
	Text   string
	File   string
	Number int // номер строки в файле, с 1
}

// Sentinel — значение-заглушка для отсутствующих текстовых полей.
// Каждое поле стандартной схемы всегда присутствует в записи,
// ниже по конвейеру никто не проверяет «а есть ли ключ».
const Sentinel = "unknown"

// NormalizedRecord — распарсенная строка лога, приведённая к единой схеме.
// Все поля строковые, отсутствующие заполняются Sentinel.
// Порядок полей совпадает с CSV-заголовком processed_logs.csv.
type NormalizedRecord struct {
	BatchID         int
	Datetime        string
	SyslogID        string
	Severity        string
	SourceIP        string
	SourcePort      string
	DestinationIP   string
	DestinationPort string
	Duration        string
	Bytes           string
	Protocol        string
	Action          string
	Description     string
	RawLog          string
}

// MappedRecord — запись после кодирования категорий и приведения чисел.
// IsAttack вычисляется ровно один раз из Severity и дальше не переписывается.
type MappedRecord struct {
	BatchID         int
	Datetime        string
	SyslogID        string
	Severity        int
	SourceIP        string
	SourcePort      int
	DestinationIP   string
	DestinationPort int
	Duration        int64
	Bytes           int64
	Protocol        int
	Action          int
	Description     string
	RawLog          string
	IsAttack        int
}

// FeatureRow — MappedRecord плюс производные признаки.
// Все признаки считаются построчно, без агрегации между строками.
type FeatureRow struct {
	MappedRecord
	Hour              int // -1, если время не распарсилось
	Weekday           int // -1, если время не распарсилось
	IsBusinessHours   int
	SrcPortPrivileged int
	DstPortPrivileged int
	SrcIPPrivate      int
	DstIPPrivate      int
	SeverityCategory  string
	SyslogIDCategory  string
}

// ClassifiedRow — строка после бинарной и (для атак) многоклассовой модели.
// CRLevel присваивается только строкам с IsAttack=1, остальные держат 0.
type ClassifiedRow struct {
	FeatureRow
	CRLevel int
}

// TimeWindow — наблюдаемый интервал времени группы, уже отформатированный.
type TimeWindow struct {
	Start string
	End   string
}

// NotificationMessage — единица вывода движка конвергенции: одна
// агрегированная группа строк высокого риска. После создания меняется
// только Suggestion (его заполняет шаг LLM-обогащения).
type NotificationMessage struct {
	Severity               int
	SourceIP               string
	Description            string
	Suggestion             string
	AggregatedCount        int
	TimeWindow             *TimeWindow
	MatchSignature         string
	AggregatedDescriptions []string
}
