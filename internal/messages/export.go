package messages

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

const (
	exportTitle      = "АРХИВ СИСТЕМЫ СВЯЗИ - Collective 3826"
	exportTimeLayout = "02.01.2006, 15:04:05"
)

// ExportFilename is the download name for an export made at t.
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("collective_3826_archive_%s.txt", t.UTC().Format(time.DateOnly))
}

// Export writes a plain-text snapshot of the log. The format is for people,
// there is no reader for it.
func (l *Log) Export(w io.Writer) error {
	res := l.LoadAll()
	if !res.Usable() {
		return res.Err
	}
	if len(res.Value) == 0 {
		return ErrEmptyArchive
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, exportTitle)
	fmt.Fprintf(bw, "Дата экспорта: %s\n", l.now().In(l.loc).Format(exportTimeLayout))
	fmt.Fprintf(bw, "Всего сообщений: %d\n\n", len(res.Value))
	for _, m := range res.Value {
		fmt.Fprintf(bw, "[%s] %s: %s\n", m.Timestamp.In(l.loc).Format(exportTimeLayout), m.Sender, m.Text)
	}
	return bw.Flush()
}
