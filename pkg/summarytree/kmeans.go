package summarytree

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// ErrTooFewPoints 样本数少于聚类数
var ErrTooFewPoints = errors.New("kmeans: fewer points than clusters")

// KMeansOptions k-means 参数
type KMeansOptions struct {
	// Seed 随机种子，相同输入与种子给出相同结果
	Seed int64
	// NInit 不同初始化的次数，取惯性最小的一次
	NInit int
	// MaxIter 单次拟合的最大迭代次数
	MaxIter int
	// Tol 质心移动的收敛阈值
	Tol float64
}

// DefaultKMeansOptions 默认参数
func DefaultKMeansOptions() KMeansOptions {
	return KMeansOptions{
		Seed:    42,
		NInit:   10,
		MaxIter: 300,
		Tol:     1e-4,
	}
}

// KMeansResult 一次拟合的结果
type KMeansResult struct {
	// K 聚类数
	K int
	// Labels 每个样本所属的簇
	Labels []int
	// Centroids 簇质心
	Centroids [][]float64
	// Inertia 样本到所属质心距离的平方和
	Inertia float64
}

// KMeans 使用 k-means++ 初始化的 Lloyd 算法
func KMeans(points [][]float64, k int, opts KMeansOptions) (KMeansResult, error) {
	if k < 1 || len(points) < k {
		return KMeansResult{}, ErrTooFewPoints
	}
	if opts.NInit < 1 {
		opts.NInit = 1
	}
	if opts.MaxIter < 1 {
		opts.MaxIter = 1
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	best := KMeansResult{Inertia: math.Inf(1)}
	for i := 0; i < opts.NInit; i++ {
		res := lloyd(points, initPlusPlus(points, k, rng), opts)
		if res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

// initPlusPlus k-means++ 初始质心选择
func initPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.Intn(len(points))]))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		for i, p := range points {
			dist[i] = nearest(p, centroids).dist
		}
		total := floats.Sum(dist)

		next := rng.Intn(len(points))
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, clone(points[next]))
	}
	return centroids
}

func lloyd(points [][]float64, centroids [][]float64, opts KMeansOptions) KMeansResult {
	k := len(centroids)
	dim := len(points[0])
	labels := make([]int, len(points))

	for iter := 0; iter < opts.MaxIter; iter++ {
		for i, p := range points {
			labels[i] = nearest(p, centroids).index
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}

		shift := 0.0
		for c := range centroids {
			// 空簇保留原质心
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += sqDist(centroids[c], sums[c])
			centroids[c] = sums[c]
		}
		if shift <= opts.Tol {
			break
		}
	}

	inertia := 0.0
	for i, p := range points {
		n := nearest(p, centroids)
		labels[i] = n.index
		inertia += n.dist
	}
	return KMeansResult{K: k, Labels: labels, Centroids: centroids, Inertia: inertia}
}

type match struct {
	index int
	dist  float64
}

// nearest 返回最近质心及其距离平方，距离相同时取下标较小者
func nearest(p []float64, centroids [][]float64) match {
	best := match{index: 0, dist: math.Inf(1)}
	for c, centroid := range centroids {
		if d := sqDist(p, centroid); d < best.dist {
			best = match{index: c, dist: d}
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// toFloat64 将嵌入向量转换为 float64
func toFloat64(vectors [][]float32) [][]float64 {
	out := make([][]float64, len(vectors))
	for i, v := range vectors {
		out[i] = make([]float64, len(v))
		for j, x := range v {
			out[i][j] = float64(x)
		}
	}
	return out
}
