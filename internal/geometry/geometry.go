// Package geometry computes thumbnail target sizes and crop rectangles.
//
// Every function is pure: inputs and outputs are values, nothing is cached and
// nothing depends on the clock. Ratios are evaluated in float64 and converted
// to int only for the final width and height: scaling to a width truncates,
// scaling to a height and by percent round up. Callers must never pass a zero
// source axis; the calculator does not guard the division.
package geometry

import "math"

// Dimensions is a pixel size. A zero field means "unconstrained" until a step
// resolves it.
type Dimensions struct {
	Width  int
	Height int
}

// Rectangle is a crop region anchored at X, Y.
type Rectangle struct {
	X      int
	Y      int
	Width  int
	Height int
}

// ScaleToWidth sets the width to maxWidth and scales the height to keep the
// aspect ratio, truncating. A height that truncates to zero is raised to one
// pixel.
func ScaleToWidth(width, height, maxWidth int) Dimensions {
	newHeight := float64(height) * float64(maxWidth) / float64(width)
	return Dimensions{
		Width:  maxWidth,
		Height: max(int(newHeight), 1),
	}
}

// ScaleToHeight sets the height to maxHeight and scales the width to keep the
// aspect ratio, rounding up.
func ScaleToHeight(width, height, maxHeight int) Dimensions {
	newWidth := float64(width) * float64(maxHeight) / float64(height)
	return Dimensions{
		Width:  int(math.Ceil(newWidth)),
		Height: maxHeight,
	}
}

// FitWithinBox is the loose fit: the result fits maxWidth x maxHeight with at
// least one axis on the bound. A zero bound is ignored.
//
// The width-first and height-first passes are both evaluated and the second
// one wins when both bounds are set.
func FitWithinBox(width, height, maxWidth, maxHeight int) Dimensions {
	size := Dimensions{Width: width, Height: height}

	if maxWidth > 0 {
		size = ScaleToWidth(width, height, maxWidth)
		if maxHeight > 0 && size.Height > maxHeight {
			size = ScaleToHeight(size.Width, size.Height, maxHeight)
		}
	}

	if maxHeight > 0 {
		size = ScaleToHeight(width, height, maxHeight)
		if maxWidth > 0 && size.Width > maxWidth {
			size = ScaleToWidth(size.Width, size.Height, maxWidth)
		}
	}

	return size
}

// FitStrict is the adaptive fit used before an exact crop: scale so the box
// covers maxWidth x maxHeight, picking the first pass from the larger target
// axis and the source orientation, then correcting the other axis if it comes
// up short.
//
// For a portrait source with a portrait target the first pass scales the
// height to maxWidth. The correction then always rescales to maxWidth, which
// covers maxHeight only when the source is at least as elongated as the
// target.
func FitStrict(width, height, maxWidth, maxHeight int) Dimensions {
	size := Dimensions{Width: width, Height: height}

	if maxWidth >= maxHeight {
		if width > height {
			size = ScaleToHeight(width, height, maxHeight)
			if size.Width < maxWidth {
				size = ScaleToWidth(width, height, maxWidth)
			}
		} else {
			size = ScaleToWidth(width, height, maxWidth)
			if size.Height < maxHeight {
				size = ScaleToHeight(width, height, maxHeight)
			}
		}
		return size
	}

	if width >= height {
		size = ScaleToWidth(width, height, maxWidth)
		if size.Height < maxHeight {
			size = ScaleToHeight(width, height, maxHeight)
		}
	} else {
		size = ScaleToHeight(width, height, maxWidth)
		if size.Width < maxWidth {
			size = ScaleToWidth(width, height, maxWidth)
		}
	}
	return size
}

// ScaleByPercent scales both axes by percent, rounding up. A percent of zero
// or less returns the source size.
func ScaleByPercent(percent float64, width, height int) Dimensions {
	if percent <= 0 {
		return Dimensions{Width: width, Height: height}
	}
	return Dimensions{
		Width:  int(math.Ceil(float64(width) * percent / 100)),
		Height: int(math.Ceil(float64(height) * percent / 100)),
	}
}

// ClampRect fits r inside bounds. The size is limited to the bounds first;
// an overflowing origin is then pulled back so the rectangle keeps its size,
// and finally floored at zero.
func ClampRect(r Rectangle, bounds Dimensions) Rectangle {
	r.Width = min(r.Width, bounds.Width)
	r.Height = min(r.Height, bounds.Height)

	if r.X+r.Width > bounds.Width {
		r.X = bounds.Width - r.Width
	}
	if r.Y+r.Height > bounds.Height {
		r.Y = bounds.Height - r.Height
	}

	r.X = max(r.X, 0)
	r.Y = max(r.Y, 0)
	return r
}

// CenterRect returns a width x height rectangle centered in bounds, with the
// size limited to the bounds.
func CenterRect(width, height int, bounds Dimensions) Rectangle {
	width = min(width, bounds.Width)
	height = min(height, bounds.Height)
	return Rectangle{
		X:      (bounds.Width - width) / 2,
		Y:      (bounds.Height - height) / 2,
		Width:  width,
		Height: height,
	}
}

// OverflowOffset places a crop along an overflowing axis: percent is clamped
// to [1, 100] and the offset is floor(percent/100 * overflow).
func OverflowOffset(overflow int, percent float64) int {
	if percent > 100 {
		percent = 100
	} else if percent < 1 {
		percent = 1
	}
	return int(percent / 100 * float64(overflow))
}
