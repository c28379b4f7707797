package scheduler

import (
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sarops/s1compose/internal/cmn/fileutil"
	"github.com/sarops/s1compose/internal/ledger"
)

// Summary is the per-batch outcome tally.
type Summary struct {
	Completed int
	Skipped   int
	Failed    int
	TimedOut  int
	Pending   int
	Elapsed   time.Duration

	// Problems lists the jobs that ended in a non-success state.
	Problems []Problem
}

// Problem identifies one failed or timed-out job.
type Problem struct {
	JobID   string
	Status  ledger.Status
	Error   string
	LogPath string
}

func newSummary(led *ledger.Ledger, ids []string, elapsed time.Duration) *Summary {
	sum := &Summary{Elapsed: elapsed}
	for _, id := range ids {
		e, ok := led.Get(id)
		if !ok {
			continue
		}
		switch e.Status {
		case ledger.StatusCompleted:
			sum.Completed++
		case ledger.StatusSkipped:
			sum.Skipped++
		case ledger.StatusFailed:
			sum.Failed++
		case ledger.StatusTimedOut:
			sum.TimedOut++
		default:
			sum.Pending++
		}
		if e.Status == ledger.StatusFailed || e.Status == ledger.StatusTimedOut {
			sum.Problems = append(sum.Problems, Problem{
				JobID:   id,
				Status:  e.Status,
				Error:   e.Error,
				LogPath: e.LogPath,
			})
		}
	}
	sort.Slice(sum.Problems, func(i, j int) bool {
		return sum.Problems[i].JobID < sum.Problems[j].JobID
	})
	return sum
}

// Total returns the number of jobs counted in the summary.
func (s *Summary) Total() int {
	return s.Completed + s.Skipped + s.Failed + s.TimedOut + s.Pending
}

// Render formats the summary as a table for terminal output.
func (s *Summary) Render() string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Completed", "Skipped", "Failed", "Timed Out", "Pending", "Elapsed"})
	t.AppendRow(table.Row{
		s.Completed, s.Skipped, s.Failed, s.TimedOut, s.Pending,
		s.Elapsed.Round(time.Second),
	})
	out := t.Render()

	if len(s.Problems) == 0 {
		return out
	}

	p := table.NewWriter()
	p.SetStyle(table.StyleLight)
	p.AppendHeader(table.Row{"Job", "Status", "Error", "Log"})
	p.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, prob := range s.Problems {
		p.AppendRow(table.Row{
			prob.JobID, string(prob.Status),
			fileutil.TruncString(prob.Error, 240), prob.LogPath,
		})
	}
	return out + "\n" + p.Render()
}
