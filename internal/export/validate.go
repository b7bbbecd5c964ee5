package export

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidYear is returned when a year argument is not an integer or
	// does not fit the store's integer year columns.
	ErrInvalidYear = errors.New("invalid year")

	// ErrInvalidRange is returned when the start year is after the end year.
	ErrInvalidRange = errors.New("start year must not be after end year")

	// ErrInvalidWorkers is returned when fewer than one worker is requested.
	ErrInvalidWorkers = errors.New("worker count must be at least 1")
)

// Year bounds match the integer start_year/end_year columns.
const (
	MinYear = math.MinInt32
	MaxYear = math.MaxInt32
)

// Defaults fill positional arguments left off the command line.
type Defaults struct {
	Start   int
	End     int
	Workers int
}

// ParseArgs reads [start_year] [end_year] [worker_count] and validates them.
func ParseArgs(args []string, d Defaults) (start, end, workers int, err error) {
	start, end, workers = d.Start, d.End, d.Workers

	if len(args) > 3 {
		return 0, 0, 0, fmt.Errorf("expected at most 3 arguments, got %d", len(args))
	}
	if len(args) > 0 {
		if start, err = ParseYearArg(args[0]); err != nil {
			return 0, 0, 0, err
		}
	}
	if len(args) > 1 {
		if end, err = ParseYearArg(args[1]); err != nil {
			return 0, 0, 0, err
		}
	}
	if len(args) > 2 {
		n, convErr := strconv.Atoi(strings.TrimSpace(args[2]))
		if convErr != nil {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidWorkers, args[2])
		}
		workers = n
	}

	if err := Validate(start, end, workers); err != nil {
		return 0, 0, 0, err
	}
	return start, end, workers, nil
}

// ParseYearArg parses a signed integer year from a command-line argument.
func ParseYearArg(s string) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidYear, s)
	}
	if err := checkYear(year); err != nil {
		return 0, err
	}
	return year, nil
}

// Validate checks a requested run before any work happens.
func Validate(start, end, workers int) error {
	if err := checkYear(start); err != nil {
		return err
	}
	if err := checkYear(end); err != nil {
		return err
	}
	if start > end {
		return fmt.Errorf("%w: %d > %d", ErrInvalidRange, start, end)
	}
	if workers < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, workers)
	}
	return nil
}

func checkYear(year int) error {
	if year < MinYear || year > MaxYear {
		return fmt.Errorf("%w: %d is outside [%d, %d]", ErrInvalidYear, year, MinYear, MaxYear)
	}
	return nil
}

// Years enumerates the inclusive range [start, end]. The loop stops on
// reaching end, so an end at the top of the int range does not wrap.
func Years(start, end int) []int {
	if start > end {
		return nil
	}
	years := make([]int, 0, int64(end)-int64(start)+1)
	for y := start; ; y++ {
		years = append(years, y)
		if y == end {
			break
		}
	}
	return years
}
