package core

import (
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptly-reconcile/internal/types"
)

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestRoundTimestamp(t *testing.T) {
	tests := []struct {
		name string
		spec types.TimestampSpec
		now  time.Time
		want time.Time
	}{
		{"daily wraps to previous day", types.TimestampSpec{Time: "23:00"}, at(2015, 10, 1, 12, 34), at(2015, 9, 30, 23, 0)},
		{"daily same day", types.TimestampSpec{Time: "00:00"}, at(2015, 10, 7, 15, 30), at(2015, 10, 7, 0, 0)},
		{"weekly one minute early", types.TimestampSpec{Time: "23:00", RepeatWeekly: "tue"}, at(2015, 11, 3, 22, 59), at(2015, 10, 27, 23, 0)},
		{"weekly one minute late", types.TimestampSpec{Time: "23:00", RepeatWeekly: "tue"}, at(2015, 11, 3, 23, 1), at(2015, 11, 3, 23, 0)},
		{"weekly monday", types.TimestampSpec{Time: "00:00", RepeatWeekly: "mon"}, at(2015, 10, 8, 9, 0), at(2015, 10, 5, 0, 0)},
		{"weekly across year boundary", types.TimestampSpec{Time: "10:00", RepeatWeekly: "fri"}, at(2016, 1, 2, 8, 0), at(2016, 1, 1, 10, 0)},
		{"weekly into previous iso year", types.TimestampSpec{Time: "10:00", RepeatWeekly: "sun"}, at(2021, 1, 2, 8, 0), at(2020, 12, 27, 10, 0)},
		{"exact boundary", types.TimestampSpec{Time: "12:00"}, at(2015, 10, 7, 12, 0), at(2015, 10, 7, 12, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RoundTimestamp(tt.spec, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoundTimestampIdempotentAndNeverLater(t *testing.T) {
	specs := []types.TimestampSpec{
		{Time: "00:00"},
		{Time: "23:59"},
		{Time: "06:30", RepeatWeekly: "wed"},
		{Time: "00:00", RepeatWeekly: "sun"},
	}
	start := at(2019, 12, 20, 0, 0)
	for _, spec := range specs {
		for step := 0; step < 400; step++ {
			now := start.Add(time.Duration(step) * 97 * time.Minute)
			once, err := RoundTimestamp(spec, now)
			require.NoError(t, err)
			twice, err := RoundTimestamp(spec, once)
			require.NoError(t, err)
			assert.Equal(t, once, twice)
			assert.False(t, once.After(now), "rounded %s past %s", once, now)
		}
	}
}

func TestRoundTimestampInvalid(t *testing.T) {
	_, err := RoundTimestamp(types.TimestampSpec{Time: "noon"}, at(2015, 1, 1, 0, 0))
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))

	_, err = RoundTimestamp(types.TimestampSpec{Time: "10:00", RepeatWeekly: "someday"}, at(2015, 1, 1, 0, 0))
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestExpandTimestampedName(t *testing.T) {
	daily := &types.TimestampSpec{Time: "00:00"}
	got, err := ExpandTimestampedName("foo-%T", daily, at(2015, 10, 7, 15, 30))
	require.NoError(t, err)
	assert.Equal(t, "foo-20151007T0000Z", got)

	weekly := &types.TimestampSpec{Time: "00:00", RepeatWeekly: "mon"}
	got, err = ExpandTimestampedName("foo-%T", weekly, at(2015, 10, 8, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "foo-20151005T0000Z", got)

	got, err = ExpandTimestampedName("plain", nil, at(2015, 10, 8, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "plain", got)

	_, err = ExpandTimestampedName("foo-%T", nil, at(2015, 10, 8, 0, 0))
	assert.Error(t, err)
}

func namerConfig() types.Config {
	return types.Config{
		Snapshots: map[string]types.Snapshot{
			"fakerepo01-%T": {
				Source:    types.MirrorSource{Mirror: "fakerepo01"},
				Timestamp: &types.TimestampSpec{Time: "00:00"},
			},
			"weekly-%T": {
				Source:    types.MirrorSource{Mirror: "fakerepo01"},
				Timestamp: &types.TimestampSpec{Time: "00:00", RepeatWeekly: "mon"},
			},
			"rolling": {Source: types.MirrorSource{Mirror: "fakerepo01"}},
		},
	}
}

func TestNamerRefName(t *testing.T) {
	now := at(2012, 10, 10, 10, 10)
	namer := NewNamer(namerConfig(), func() time.Time { return now })

	tests := []struct {
		ref  types.SnapshotRef
		want string
	}{
		{types.LiteralRef("anything"), "anything"},
		{types.TimestampedRef("fakerepo01-%T", 0), "fakerepo01-20121010T0000Z"},
		{types.TimestampedRef("fakerepo01-%T", 1), "fakerepo01-20121009T0000Z"},
		{types.TimestampedRef("fakerepo01-%T", 3), "fakerepo01-20121007T0000Z"},
		{types.TimestampedRef("weekly-%T", 0), "weekly-20121008T0000Z"},
		{types.TimestampedRef("weekly-%T", 1), "weekly-20121001T0000Z"},
		{types.TimestampedRef("rolling", 1), "rolling"},
	}
	for _, tt := range tests {
		got, err := namer.RefName(tt.ref)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestNamerRefNameOnBoundary(t *testing.T) {
	now := at(2012, 10, 10, 0, 0)
	namer := NewNamer(namerConfig(), func() time.Time { return now })
	got, err := namer.RefName(types.TimestampedRef("fakerepo01-%T", 0))
	require.NoError(t, err)
	assert.Equal(t, "fakerepo01-20121010T0000Z", got)
}

func TestNamerRefNameErrors(t *testing.T) {
	namer := NewNamer(namerConfig(), nil)
	_, err := namer.RefName(types.TimestampedRef("undeclared-%T", 0))
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))

	_, err = namer.RefName(types.TimestampedRef("fakerepo01-%T", -1))
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestNamerSnapshotName(t *testing.T) {
	namer := NewNamer(namerConfig(), func() time.Time { return at(2015, 10, 7, 15, 30) })
	got, err := namer.SnapshotName("fakerepo01-%T")
	require.NoError(t, err)
	assert.Equal(t, "fakerepo01-20151007T0000Z", got)

	got, err = namer.SnapshotName("rolling")
	require.NoError(t, err)
	assert.Equal(t, "rolling", got)
}
