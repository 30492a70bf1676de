package summarytree_test

import (
	"errors"
	"testing"

	"github.com/easyops/convref-go/pkg/summarytree"
)

func blobs() [][]float64 {
	return [][]float64{
		{0, 0}, {0.1, 0}, {0, 0.1},
		{10, 10}, {10.1, 10}, {10, 10.1},
	}
}

func TestKMeans_SeparatesBlobs(t *testing.T) {
	res, err := summarytree.KMeans(blobs(), 2, summarytree.DefaultKMeansOptions())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.K != 2 || len(res.Labels) != 6 {
		t.Fatalf("unexpected result %+v", res)
	}
	for i := 1; i < 3; i++ {
		if res.Labels[i] != res.Labels[0] {
			t.Errorf("expected point %d in the first blob's cluster", i)
		}
		if res.Labels[i+3] != res.Labels[3] {
			t.Errorf("expected point %d in the second blob's cluster", i+3)
		}
	}
	if res.Labels[0] == res.Labels[3] {
		t.Error("expected blobs in different clusters")
	}
	if res.Inertia > 0.1 {
		t.Errorf("expected small inertia, got %f", res.Inertia)
	}
}

func TestKMeans_Deterministic(t *testing.T) {
	points := [][]float64{{1, 2}, {3, 1}, {0, 5}, {4, 4}, {2, 2}, {5, 0}, {1, 1}}
	opts := summarytree.DefaultKMeansOptions()

	a, err := summarytree.KMeans(points, 3, opts)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	b, err := summarytree.KMeans(points, 3, opts)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for i := range a.Labels {
		if a.Labels[i] != b.Labels[i] {
			t.Fatalf("labels differ between runs: %v vs %v", a.Labels, b.Labels)
		}
	}
	if a.Inertia != b.Inertia {
		t.Errorf("inertia differs between runs: %f vs %f", a.Inertia, b.Inertia)
	}
}

func TestKMeans_InertiaDecreasesWithK(t *testing.T) {
	points := [][]float64{{0}, {1}, {5}, {6}, {20}, {21}, {40}}
	opts := summarytree.DefaultKMeansOptions()

	prev := -1.0
	for k := 1; k <= 4; k++ {
		res, err := summarytree.KMeans(points, k, opts)
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		if prev >= 0 && res.Inertia > prev {
			t.Errorf("k=%d: inertia %f increased from %f", k, res.Inertia, prev)
		}
		prev = res.Inertia
	}
}

func TestKMeans_TooFewPoints(t *testing.T) {
	_, err := summarytree.KMeans([][]float64{{1}}, 2, summarytree.DefaultKMeansOptions())
	if !errors.Is(err, summarytree.ErrTooFewPoints) {
		t.Fatalf("expected ErrTooFewPoints, got %v", err)
	}
}

func TestKMeans_IdenticalPoints(t *testing.T) {
	points := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	res, err := summarytree.KMeans(points, 2, summarytree.DefaultKMeansOptions())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Inertia != 0 {
		t.Errorf("expected zero inertia, got %f", res.Inertia)
	}
}
