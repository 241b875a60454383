package preprocess

const (
	InputWidth  = 224
	InputHeight = 224
	Channels    = 3
)

// ImageNet normalization constants, per RGB channel.
var (
	Mean = [Channels]float32{0.485, 0.456, 0.406}
	Std  = [Channels]float32{0.229, 0.224, 0.225}
)
