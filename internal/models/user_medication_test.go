package models

import (
	"reflect"
	"testing"
	"time"
)

func TestNormalizeTimeSlots(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr bool
	}{
		{name: "sorted and deduplicated", in: []string{"20:00", "08:00", "08:00"}, want: []string{"08:00", "20:00"}},
		{name: "single digit hour is padded", in: []string{"8:30"}, want: []string{"08:30"}},
		{name: "surrounding spaces trimmed", in: []string{" 13:15 "}, want: []string{"13:15"}},
		{name: "out of range hour", in: []string{"24:00"}, wantErr: true},
		{name: "not a time", in: []string{"morning"}, wantErr: true},
		{name: "empty input", in: nil, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeTimeSlots(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeTimeSlots() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTimeSlots() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserMedication_IsActiveOn(t *testing.T) {
	t.Parallel()
	day := func(d int) time.Time { return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC) }
	end := day(20)

	tests := []struct {
		name string
		um   UserMedication
		on   time.Time
		want bool
	}{
		{name: "inside open window", um: UserMedication{Active: true, StartDate: day(1)}, on: day(15), want: true},
		{name: "start day counts", um: UserMedication{Active: true, StartDate: day(15)}, on: day(15).Add(22 * time.Hour), want: true},
		{name: "before start", um: UserMedication{Active: true, StartDate: day(16)}, on: day(15), want: false},
		{name: "end day counts", um: UserMedication{Active: true, StartDate: day(1), EndDate: &end}, on: day(20), want: true},
		{name: "after end", um: UserMedication{Active: true, StartDate: day(1), EndDate: &end}, on: day(21), want: false},
		{name: "soft deleted", um: UserMedication{Active: false, StartDate: day(1)}, on: day(15), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.um.IsActiveOn(tt.on); got != tt.want {
				t.Errorf("IsActiveOn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTruncateDay_KeepsLocalCalendarDate(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC-5", -5*3600)
	late := time.Date(2026, 5, 3, 23, 30, 0, 0, loc)
	got := TruncateDay(late)
	want := time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("TruncateDay() = %v, want %v", got, want)
	}
}
