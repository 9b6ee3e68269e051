package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chainmint/issuer/internal/core/domain"
)

// Metadata keys promoted into dedicated export columns.
const (
	metadataKeyReasonCode   = "reasonCode"
	metadataKeyActorAddress = "actorAddress"
)

// csvHeader is the fixed column set of CSV exports. The order is part of
// the export contract and never depends on the data.
const csvHeader = "DeploymentId,TokenType,TokenName,TokenSymbol,Network,DeployedBy," +
	"AssetIdentifier,TransactionHash,Status,Timestamp,Message,ReasonCode," +
	"ActorAddress,ConfirmedRound,ErrorMessage,DurationFromPreviousMs"

// buildRecords flattens deployments into export rows, one per history
// entry, computing the duration from the previous entry of the same
// deployment.
func buildRecords(deployments []*domain.TokenDeployment) []domain.ExportRecord {
	var records []domain.ExportRecord
	for _, d := range deployments {
		var prev time.Time
		for i, e := range d.StatusHistory {
			var sincePrev int64
			if i > 0 {
				sincePrev = e.Timestamp.Sub(prev).Milliseconds()
			}
			prev = e.Timestamp

			records = append(records, domain.ExportRecord{
				DeploymentID:           d.DeploymentID,
				TokenType:              d.TokenType,
				TokenName:              d.TokenName,
				TokenSymbol:            d.TokenSymbol,
				Network:                d.Network,
				DeployedBy:             d.DeployedBy,
				AssetIdentifier:        d.AssetIdentifier,
				TransactionHash:        e.TransactionHash,
				Status:                 string(e.Status),
				Timestamp:              e.Timestamp,
				Message:                e.Message,
				ReasonCode:             e.Metadata[metadataKeyReasonCode],
				ActorAddress:           e.Metadata[metadataKeyActorAddress],
				ConfirmedRound:         e.ConfirmedRound,
				ErrorMessage:           e.ErrorMessage,
				DurationFromPreviousMs: sincePrev,
			})
		}
	}
	return records
}

// encodeJSON serializes records as a camelCase object tree.
func encodeJSON(records []domain.ExportRecord, generatedAt time.Time) ([]byte, error) {
	doc := struct {
		GeneratedAt time.Time             `json:"generatedAt"`
		RecordCount int                   `json:"recordCount"`
		Records     []domain.ExportRecord `json:"records"`
	}{
		GeneratedAt: generatedAt,
		RecordCount: len(records),
		Records:     records,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode export json: %w", err)
	}
	return data, nil
}

// encodeCSV serializes records as a fixed-column table. Every data field
// is double-quoted with embedded quotes doubled and newlines stripped, so
// downstream spreadsheet tooling never mis-splits rows.
func encodeCSV(records []domain.ExportRecord) []byte {
	var b strings.Builder
	b.WriteString(csvHeader)
	b.WriteByte('\n')

	for _, r := range records {
		fields := []string{
			r.DeploymentID,
			r.TokenType,
			r.TokenName,
			r.TokenSymbol,
			r.Network,
			r.DeployedBy,
			r.AssetIdentifier,
			r.TransactionHash,
			r.Status,
			r.Timestamp.UTC().Format(time.RFC3339),
			r.Message,
			r.ReasonCode,
			r.ActorAddress,
			fmt.Sprintf("%d", r.ConfirmedRound),
			r.ErrorMessage,
			fmt.Sprintf("%d", r.DurationFromPreviousMs),
		}
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(csvField(f))
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func csvField(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	s = strings.ReplaceAll(s, `"`, `""`)
	return `"` + s + `"`
}
