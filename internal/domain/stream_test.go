package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisibleTo(t *testing.T) {
	tests := []struct {
		name        string
		visibility  Visibility
		ownerID     string
		requesterID string
		want        bool
	}{
		{"public stream visible to anyone", VisibilityPublic, "owner-1", "someone-else", true},
		{"public stream visible anonymously", VisibilityPublic, "owner-1", "", true},
		{"member stream visible to anyone", VisibilityMember, "owner-1", "someone-else", true},
		{"private stream visible to owner", VisibilityPrivate, "owner-1", "owner-1", true},
		{"private stream hidden from others", VisibilityPrivate, "owner-1", "someone-else", false},
		{"private stream hidden anonymously", VisibilityPrivate, "owner-1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Stream{OwnerID: tt.ownerID, Visibility: tt.visibility}
			assert.Equal(t, tt.want, s.VisibleTo(tt.requesterID))
		})
	}
}

func TestPageNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Page
		want Page
	}{
		{"valid page unchanged", Page{Number: 3, Size: 20}, Page{Number: 3, Size: 20}},
		{"zero page clamps to first", Page{Number: 0, Size: 20}, Page{Number: 1, Size: 20}},
		{"negative page clamps to first", Page{Number: -5, Size: 20}, Page{Number: 1, Size: 20}},
		{"zero size gets default", Page{Number: 2, Size: 0}, Page{Number: 2, Size: 10}},
		{"empty page gets defaults", Page{}, Page{Number: 1, Size: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestPageSkip(t *testing.T) {
	assert.Equal(t, 0, Page{Number: 1, Size: 10}.Skip())
	assert.Equal(t, 10, Page{Number: 2, Size: 10}.Skip())
	assert.Equal(t, 40, Page{Number: 3, Size: 20}.Skip())
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total int64
		size  int
		want  int64
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{95, 10, 10},
		{100, 10, 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPages(tt.total, tt.size), "total=%d size=%d", tt.total, tt.size)
	}
}
