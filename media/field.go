package media

import "fmt"

// SplitFields separates a planar frame into its top field (even rows of each
// plane) and bottom field (odd rows). An odd final row has no partner and is
// dropped. The fields carry PTS and PTS+1.
func SplitFields(f *Frame) (top, bottom *Frame) {
	if f.Format != FormatPlanarYUV {
		panic(fmt.Sprintf("media: SplitFields wants %s, got %s", FormatPlanarYUV, f.Format))
	}
	if err := f.Validate(); err != nil {
		panic(fmt.Sprintf("media: SplitFields: %v", err))
	}
	fieldHeight := f.Height / 2
	if fieldHeight == 0 {
		panic(fmt.Sprintf("media: SplitFields needs at least two rows, got %d", f.Height))
	}

	top = NewFrame(f.Width, fieldHeight, FormatPlanarYUV)
	bottom = NewFrame(f.Width, fieldHeight, FormatPlanarYUV)
	top.PTS = f.PTS
	bottom.PTS = f.PTS + 1

	plane := f.Width * f.Height
	fieldPlane := f.Width * fieldHeight
	for p := 0; p < 3; p++ {
		src := f.Data[p*plane : (p+1)*plane]
		topDst := top.Data[p*fieldPlane : (p+1)*fieldPlane]
		bottomDst := bottom.Data[p*fieldPlane : (p+1)*fieldPlane]
		for row := 0; row < fieldHeight; row++ {
			copy(topDst[row*f.Width:(row+1)*f.Width], src[(2*row)*f.Width:(2*row+1)*f.Width])
			copy(bottomDst[row*f.Width:(row+1)*f.Width], src[(2*row+1)*f.Width:(2*row+2)*f.Width])
		}
	}
	return top, bottom
}
