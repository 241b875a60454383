package preprocess

import (
	"image"
	"runtime"
	"sync"
)

// channelProcessor writes a normalized NCHW tensor from an NRGBA image,
// splitting rows across workers.
type channelProcessor struct {
	width, height int
	channelSize   int
	numWorkers    int
}

func newChannelProcessor(width, height int) *channelProcessor {
	workers := runtime.GOMAXPROCS(0)
	if workers > height {
		workers = height
	}
	if workers < 1 {
		workers = 1
	}
	return &channelProcessor{
		width:       width,
		height:      height,
		channelSize: width * height,
		numWorkers:  workers,
	}
}

// process fills buffer, which must hold Channels*width*height values.
// img must already be width x height.
func (cp *channelProcessor) process(img *image.NRGBA, buffer []float32) {
	rowsPerWorker := cp.height / cp.numWorkers

	var wg sync.WaitGroup
	wg.Add(cp.numWorkers)

	for w := 0; w < cp.numWorkers; w++ {
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if w == cp.numWorkers-1 {
			end = cp.height
		}

		go func(start, end int) {
			defer wg.Done()
			cp.rows(img, buffer, start, end)
		}(start, end)
	}

	wg.Wait()
}

func (cp *channelProcessor) rows(img *image.NRGBA, buffer []float32, start, end int) {
	origin := img.Bounds().Min
	for y := start; y < end; y++ {
		row := img.PixOffset(origin.X, origin.Y+y)
		src := img.Pix[row : row+cp.width*4]
		offset := y * cp.width
		for x := 0; x < cp.width; x++ {
			i := offset + x
			r, g, b := src[x*4], src[x*4+1], src[x*4+2]
			buffer[i] = (float32(r)/255.0 - Mean[0]) / Std[0]
			buffer[cp.channelSize+i] = (float32(g)/255.0 - Mean[1]) / Std[1]
			buffer[cp.channelSize*2+i] = (float32(b)/255.0 - Mean[2]) / Std[2]
		}
	}
}
