package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile сохраняет текущее состояние реестра в формате node_exporter
// textfile collector. Пустой путь ничего не делает.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
