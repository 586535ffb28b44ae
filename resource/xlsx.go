package resource

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kasuganosora/farmquest/game/quiz"
	"github.com/kasuganosora/farmquest/game/ranking"
	"github.com/xuri/excelize/v2"
)

// Workbook layout for quiz imports: one sheet per quiz id, a header row,
// then id | question | option 1..4 | correct option (1-4) | explanation.
const (
	colID = iota
	colQuestion
	colOpt1
	colOpt2
	colOpt3
	colOpt4
	colCorrect
	colExplanation
)

// ImportQuizXLSX reads a quiz workbook from disk.
func ImportQuizXLSX(path string) ([]quiz.Quiz, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("resource: open %s: %w", path, err)
	}
	defer f.Close()
	return ImportQuizWorkbook(f)
}

// ImportQuizWorkbook converts every sheet into a quiz holding only the
// questions it lists; the bank merges them into existing quizzes by id.
// Rows shorter than the correct-option column are skipped.
func ImportQuizWorkbook(f *excelize.File) ([]quiz.Quiz, error) {
	var out []quiz.Quiz
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("resource: sheet %s: %w", sheet, err)
		}
		q := quiz.Quiz{ID: strings.TrimSpace(sheet), Title: strings.TrimSpace(sheet)}
		for i, row := range rows {
			if i == 0 || len(row) <= colCorrect {
				continue
			}
			qq, err := questionFromRow(row)
			if err != nil {
				return nil, fmt.Errorf("resource: sheet %s row %d: %w", sheet, i+1, err)
			}
			q.Questions = append(q.Questions, qq)
		}
		if len(q.Questions) > 0 {
			out = append(out, q)
		}
	}
	return out, nil
}

func questionFromRow(row []string) (quiz.Question, error) {
	qq := quiz.Question{
		ID:       strings.TrimSpace(row[colID]),
		Question: strings.TrimSpace(row[colQuestion]),
	}
	if qq.ID == "" || qq.Question == "" {
		return qq, fmt.Errorf("missing id or question")
	}
	for _, opt := range row[colOpt1 : colOpt4+1] {
		if opt = strings.TrimSpace(opt); opt != "" {
			qq.Options = append(qq.Options, opt)
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(row[colCorrect]))
	if err != nil || n < 1 || n > len(qq.Options) {
		return qq, fmt.Errorf("invalid correct option %q", row[colCorrect])
	}
	qq.Correct = n - 1
	if len(row) > colExplanation {
		qq.Explanation = strings.TrimSpace(row[colExplanation])
	}
	return qq, nil
}

// Sheet names of the leaderboard workbook.
const (
	FarmersSheet    = "Farmers"
	PanchayatsSheet = "Panchayats"
)

// LeaderboardWorkbook builds a workbook with the farmer and panchayat
// rankings. The caller closes it.
func LeaderboardWorkbook(farmers []ranking.Entry, panchayats []ranking.PanchayatEntry) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", FarmersSheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(PanchayatsSheet); err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	farmerRows := [][]any{{"Rank", "ID", "Name", "Panchayat", "Sustainability Score", "Total Points", "Level", "Badges", "Completed Quests"}}
	for _, e := range farmers {
		farmerRows = append(farmerRows, []any{e.Rank, e.ID, e.Name, e.Panchayat, e.SustainabilityScore, e.TotalPoints, e.Level, e.Badges, e.CompletedQuests})
	}
	panchayatRows := [][]any{{"Rank", "Panchayat", "Farmers", "Average Score", "Total Points", "Completed Quests"}}
	for _, p := range panchayats {
		panchayatRows = append(panchayatRows, []any{p.Rank, p.Name, p.TotalFarmers, p.AvgScore, p.TotalPoints, p.CompletedQuests})
	}

	for sheet, rows := range map[string][][]any{FarmersSheet: farmerRows, PanchayatsSheet: panchayatRows} {
		if err := writeRows(f, sheet, rows); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("resource: write %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

// ExportLeaderboard writes the leaderboard workbook to w.
func ExportLeaderboard(w io.Writer, farmers []ranking.Entry, panchayats []ranking.PanchayatEntry) error {
	f, err := LeaderboardWorkbook(farmers, panchayats)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// ExportLeaderboardFile writes the leaderboard workbook to path.
func ExportLeaderboardFile(path string, farmers []ranking.Entry, panchayats []ranking.PanchayatEntry) error {
	f, err := LeaderboardWorkbook(farmers, panchayats)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}
