package main

import (
	"fmt"
	"strconv"

	"github.com/storyreel/studio/internal/model"
	"github.com/storyreel/studio/internal/status"
)

// recordRows lays out a record for the status table.
func recordRows(rec *model.GenerationRecord) [][2]string {
	rows := [][2]string{
		{"Job", rec.ID},
		{"Stage", string(rec.Stage)},
		{"Progress", strconv.Itoa(status.ComputeOverallProgress(rec)) + "%"},
		{"Outcome", string(status.OutcomeOf(rec))},
		{"Detail", describeProgress(rec)},
		{"Checkpoint", string(rec.Checkpoint)},
		{"Script", rec.ScriptID},
		{"Chapter", rec.ChapterID},
	}
	if msg := rec.ErrorText(); msg != "" {
		advice := status.Classify(msg)
		rows = append(rows,
			[2]string{"Error", msg},
			[2]string{"Retry hint", string(advice.RetryHint)},
			[2]string{"Guidance", advice.Guidance},
		)
	}
	if !rec.UpdatedAt.IsZero() {
		rows = append(rows, [2]string{"Updated", rec.UpdatedAt.Local().Format("2006-01-02 15:04:05")})
	}
	return rows
}

// describeProgress summarizes the active per-stage block.
func describeProgress(rec *model.GenerationRecord) string {
	switch p := rec.ActiveProgress().(type) {
	case model.AudioProgress:
		if p.DurationSeconds > 0 {
			return fmt.Sprintf("%.1fs of audio", p.DurationSeconds)
		}
		return p.Message
	case model.ImageProgress:
		return scenes(p.SceneCounters, p.Message)
	case model.VideoProgress:
		return scenes(p.SceneCounters, p.Message)
	case model.LipSyncProgress:
		return scenes(p.SceneCounters, p.Message)
	case model.MergeProgress:
		return p.Message
	default:
		return ""
	}
}

func scenes(c model.SceneCounters, message string) string {
	s := fmt.Sprintf("%d/%d scenes", c.ScenesCompleted, c.TotalScenes)
	if message != "" {
		s += " - " + message
	}
	return s
}

// progressLine is the one-line form printed by watch.
func progressLine(rec *model.GenerationRecord) string {
	line := fmt.Sprintf("[%3d%%] %s", status.ComputeOverallProgress(rec), rec.Stage)
	if detail := describeProgress(rec); detail != "" {
		line += "  " + detail
	}
	return line
}
