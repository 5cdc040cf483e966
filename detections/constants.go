package detections

const (
	InputWidth  = 640
	InputHeight = 640

	// YOLO COCO detection head: one row of 4 box coords + 80 class scores
	// per anchor, 8400 anchors.
	NumClasses = 80
	NumAnchors = 8400

	DefaultConfThreshold = 0.25
	DefaultIoUThreshold  = 0.45

	WarmupWidth  = 256
	WarmupHeight = 256
)
