package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-moments/internal/media"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetStringSlice gets a string slice flag value or panics if the flag doesn't exist.
func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	val, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt64Slice gets an int64 slice flag value or panics if the flag doesn't exist.
func mustGetInt64Slice(cmd *cobra.Command, name string) []int64 {
	val, err := cmd.Flags().GetInt64Slice(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// parseTimeRange parses --from/--to dates (YYYY-MM-DD, inclusive).
func parseTimeRange(from, to string) (media.TimeRange, error) {
	var r media.TimeRange
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return r, fmt.Errorf("invalid --from date %q: %w", from, err)
		}
		r.From = t
	}
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return r, fmt.Errorf("invalid --to date %q: %w", to, err)
		}
		r.To = t.Add(24*time.Hour - time.Millisecond)
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return r, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return r, nil
}

// parseKinds parses --kinds values such as "image" or "video".
func parseKinds(values []string) (media.KindFilter, error) {
	var kinds media.KindFilter
	for _, v := range values {
		switch k := media.Kind(strings.ToLower(strings.TrimSpace(v))); k {
		case media.KindImage, media.KindVideo:
			kinds = append(kinds, k)
		default:
			return nil, fmt.Errorf("unknown media kind %q (expected image or video)", v)
		}
	}
	return kinds, nil
}
