package postprocess

import "fmt"

// COCOClasses are the 80 labels YOLO models are trained on, indexed by class id.
var COCOClasses = []string{
	"person",
	"bicycle",
	"car",
	"motorcycle",
	"airplane",
	"bus",
	"train",
	"truck",
	"boat",
	"traffic light",
	"fire hydrant",
	"stop sign",
	"parking meter",
	"bench",
	"bird",
	"cat",
	"dog",
	"horse",
	"sheep",
	"cow",
	"elephant",
	"bear",
	"zebra",
	"giraffe",
	"backpack",
	"umbrella",
	"handbag",
	"tie",
	"suitcase",
	"frisbee",
	"skis",
	"snowboard",
	"sports ball",
	"kite",
	"baseball bat",
	"baseball glove",
	"skateboard",
	"surfboard",
	"tennis racket",
	"bottle",
	"wine glass",
	"cup",
	"fork",
	"knife",
	"spoon",
	"bowl",
	"banana",
	"apple",
	"sandwich",
	"orange",
	"broccoli",
	"carrot",
	"hot dog",
	"pizza",
	"donut",
	"cake",
	"chair",
	"couch",
	"potted plant",
	"bed",
	"dining table",
	"toilet",
	"tv",
	"laptop",
	"mouse",
	"remote",
	"keyboard",
	"cell phone",
	"microwave",
	"oven",
	"toaster",
	"sink",
	"refrigerator",
	"book",
	"clock",
	"vase",
	"scissors",
	"teddy bear",
	"hair drier",
	"toothbrush",
}

// Label returns the COCO label of a class id.
func Label(classID int) string {
	if classID >= 0 && classID < len(COCOClasses) {
		return COCOClasses[classID]
	}
	return fmt.Sprintf("unknown_%d", classID)
}

// The TensorFlow SSD graphs number COCO classes 1..90 with gaps.
// ssdToCOCO maps those ids onto the contiguous 0..79 ids above.
var ssdToCOCO = func() map[int]int {
	ranges := [][2]int{{1, 11}, {13, 25}, {27, 28}, {31, 44}, {46, 65}, {67, 67}, {70, 70}, {72, 82}, {84, 90}}
	m := make(map[int]int, len(COCOClasses))
	next := 0
	for _, r := range ranges {
		for id := r[0]; id <= r[1]; id++ {
			m[id] = next
			next++
		}
	}
	return m
}()
