package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/victordov/chatbot-construction-sub001/internal/storage/sqlite"
)

// Conversations writes an XLSX workbook of conversation summaries,
// one transcript sheet per conversation.
func Conversations(w io.Writer, summaries []*sqlite.ConversationSummary, transcripts map[string][]*sqlite.MessageRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Chats"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headers := []string{"Session ID", "Visitor", "Status", "Messages", "Last Activity", "Created"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, summary := range summaries {
		row := rowIndex + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), summary.SessionID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), summary.VisitorName)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), summary.Status)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), summary.MessageCount)
		if summary.LastMessageAt != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), summary.LastMessageAt.Format(time.RFC3339))
		}
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), summary.CreatedAt.Format(time.RFC3339))

		if messages, ok := transcripts[summary.SessionID]; ok {
			if err := writeTranscript(f, summary.SessionID, messages); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeTranscript(f *excelize.File, sessionID string, messages []*sqlite.MessageRecord) error {
	// Sheet names are capped at 31 chars
	sheetName := sessionID
	if len(sheetName) > 31 {
		sheetName = sheetName[:31]
	}
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create transcript sheet: %w", err)
	}

	headers := []string{"Time", "Sender", "Operator", "Message", "Attachment"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, record := range messages {
		row := rowIndex + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), record.CreatedAt.Format(time.RFC3339))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), record.Sender)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), record.OperatorName)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), record.Content)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), record.Filename)
	}
	return nil
}
