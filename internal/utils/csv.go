package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"cryptotrader/internal/domain"
)

func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"id", "timestamp", "symbol", "side", "quantity", "price", "value", "fee", "rationale"})

	for _, t := range trades {
		writer.Write([]string{
			t.ID,
			t.Timestamp.Format(time.RFC3339),
			t.Symbol,
			string(t.Side),
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			strconv.FormatFloat(t.Value, 'f', -1, 64),
			strconv.FormatFloat(t.Fee, 'f', -1, 64),
			t.Rationale,
		})
	}
	return writer.Error()
}
