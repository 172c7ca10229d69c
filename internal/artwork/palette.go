package artwork

import (
	"fmt"
	"image"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/EdlinOrg/prominentcolor"
)

const gradientSteps = 20

type Palette struct {
	Primary   string
	Secondary string
	Accent    string
	Dim       string
	Gradient  []string
}

func DefaultPalette() *Palette {
	return &Palette{
		Primary:   "#8BA4E8",
		Secondary: "#E8A4C8",
		Accent:    "#B8A8E8",
		Dim:       "#6272A4",
		Gradient:  Gradient("#8BA4E8", "#E8A4C8", gradientSteps),
	}
}

type swatch struct {
	hex        string
	saturation float64
	brightness float64
}

func (s swatch) vivid() float64 {
	return s.saturation * (1 - math.Abs(s.brightness-0.6))
}

// ExtractPalette picks three readable colors out of a cover. Covers that are
// too flat to yield three colors get the default palette.
func ExtractPalette(img image.Image) *Palette {
	if img == nil {
		return DefaultPalette()
	}

	items, err := prominentcolor.KmeansWithAll(5, img, prominentcolor.ArgumentDefault, prominentcolor.DefaultSize, nil)
	if err != nil || len(items) < 3 {
		return DefaultPalette()
	}

	swatches := make([]swatch, 0, len(items))
	for _, item := range items {
		swatches = append(swatches, toSwatch(int(item.Color.R), int(item.Color.G), int(item.Color.B)))
	}

	primary, ok := pick(swatches, nil, 0.2, 0.3, true)
	if !ok {
		return DefaultPalette()
	}
	secondary, _ := pick(swatches, []string{primary.hex}, 0.15, 0.3, false)
	accent, _ := pick(swatches, []string{primary.hex, secondary.hex}, 0.1, 0.25, false)

	chosen := []swatch{primary, secondary, accent}
	slices.SortStableFunc(chosen, func(a, b swatch) int {
		switch {
		case a.brightness > b.brightness:
			return -1
		case a.brightness < b.brightness:
			return 1
		}
		return 0
	})

	p := &Palette{
		Primary:   boost(chosen[0]),
		Accent:    boost(chosen[1]),
		Secondary: boost(chosen[2]),
		Dim:       "#6272A4",
	}
	start, end := smoothestPair(p.Primary, p.Secondary, p.Accent)
	p.Gradient = Gradient(start, end, gradientSteps)
	return p
}

// pick returns the most vivid swatch (or the first in order when best is
// false) that clears the thresholds and is not excluded.
func pick(swatches []swatch, exclude []string, minSat, minBright float64, best bool) (swatch, bool) {
	var found swatch
	ok := false
	for _, s := range swatches {
		if slices.Contains(exclude, s.hex) || s.saturation <= minSat || s.brightness <= minBright {
			continue
		}
		if !best {
			return s, true
		}
		if !ok || s.vivid() > found.vivid() {
			found, ok = s, true
		}
	}
	return found, ok
}

func toSwatch(r, g, b int) swatch {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	hi := math.Max(math.Max(rf, gf), bf)
	lo := math.Min(math.Min(rf, gf), bf)

	sat := 0.0
	if hi > 0 {
		sat = (hi - lo) / hi
	}
	return swatch{hex: RGBToHex(r, g, b), saturation: sat, brightness: hi}
}

// boost lifts dark colors and tames near-white ones so text stays legible on
// a dark terminal.
func boost(s swatch) string {
	r, g, b := HexToRGB(s.hex)
	if s.hex == "" {
		return "#8BA4E8"
	}

	if s.brightness < 0.4 && s.brightness > 0 {
		factor := math.Min(0.4/s.brightness, 2.5)
		r, g, b = int(float64(r)*factor), int(float64(g)*factor), int(float64(b)*factor)
	}
	if s.brightness > 0.85 {
		avg := float64(r+g+b) / 3
		r = int(avg + (float64(r)-avg)*0.7)
		g = int(avg + (float64(g)-avg)*0.7)
		b = int(avg + (float64(b)-avg)*0.7)
	}
	return RGBToHex(r, g, b)
}

// smoothestPair returns the ordered pair of colors whose gradient has the
// smallest perceptual jump. Near ties go to the brighter start.
func smoothestPair(a, b, c string) (string, string) {
	pairs := [][2]string{{a, b}, {a, c}, {b, a}, {b, c}, {c, a}, {c, b}}

	best := 0
	jumps := make([]float64, len(pairs))
	for i, pair := range pairs {
		jumps[i] = maxJump(Gradient(pair[0], pair[1], gradientSteps))
		if jumps[i] < jumps[best] {
			best = i
		}
	}
	for i, pair := range pairs {
		if i != best && jumps[i]-jumps[best] < 5 && Lightness(pair[0]) > Lightness(pairs[best][0]) {
			best = i
		}
	}
	return pairs[best][0], pairs[best][1]
}

// maxJump is the largest redmean distance between neighbouring gradient stops.
func maxJump(stops []string) float64 {
	worst := 0.0
	for i := 1; i < len(stops); i++ {
		r1, g1, b1 := HexToRGB(stops[i-1])
		r2, g2, b2 := HexToRGB(stops[i])
		rmean := (r1 + r2) / 2
		dr, dg, db := r1-r2, g1-g2, b1-b2
		d := math.Sqrt(float64((2+rmean/256)*dr*dr + 4*dg*dg + (2+(255-rmean)/256)*db*db))
		worst = math.Max(worst, d)
	}
	return worst
}

// Gradient interpolates between two colors in LCH space along the shorter
// hue arc. Distant colors get a double smoothstep so the ends linger.
func Gradient(startHex, endHex string, steps int) []string {
	steps = max(steps, 2)

	sl, sc, sh := toLCH(HexToRGB(startHex))
	el, ec, eh := toLCH(HexToRGB(endHex))
	dh := hueDelta(sh, eh)

	ease := math.Abs(ec-sc) > 30 || math.Abs(dh) > 60 || math.Abs(el-sl) > 30

	out := make([]string, steps)
	for i := range out {
		t := float64(i) / float64(steps-1)
		if ease {
			t = smoothStep(smoothStep(t))
		}
		out[i] = RGBToHex(fromLCH(sl+t*(el-sl), sc+t*(ec-sc), wrapHue(sh+t*dh)))
	}
	return out
}

// Blend mixes two colors in LCH space, t=0 is a and t=1 is b.
func Blend(a, b string, t float64) string {
	l1, c1, h1 := toLCH(HexToRGB(a))
	l2, c2, h2 := toLCH(HexToRGB(b))
	return RGBToHex(fromLCH(l1+t*(l2-l1), c1+t*(c2-c1), wrapHue(h1+t*hueDelta(h1, h2))))
}

// Glow brightens a color by up to 60% at full intensity.
func Glow(hex string, intensity float64) string {
	r, g, b := HexToRGB(hex)
	f := 1 + intensity*0.6
	return RGBToHex(int(float64(r)*f), int(float64(g)*f), int(float64(b)*f))
}

// Scale multiplies every channel, used to fade colors in and out.
func Scale(hex string, factor float64) string {
	r, g, b := HexToRGB(hex)
	return RGBToHex(int(float64(r)*factor), int(float64(g)*factor), int(float64(b)*factor))
}

// Lightness is the L of LCH on a 0..100 scale.
func Lightness(hex string) float64 {
	l, _, _ := toLCH(HexToRGB(hex))
	return l
}

func HexToRGB(hex string) (int, int, int) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 255, 255, 255
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 255, 255, 255
	}
	return int(v >> 16 & 0xFF), int(v >> 8 & 0xFF), int(v & 0xFF)
}

func RGBToHex(r, g, b int) string {
	return fmt.Sprintf("#%02X%02X%02X", clampByte(r), clampByte(g), clampByte(b))
}

func clampByte(v int) int {
	return min(max(v, 0), 255)
}

func hueDelta(from, to float64) float64 {
	d := to - from
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return d
}

func wrapHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

func smoothStep(t float64) float64 {
	t = math.Max(0, math.Min(1, t))
	return t * t * (3 - 2*t)
}

// d65 white point
const (
	whiteX = 0.95047
	whiteY = 1.0
	whiteZ = 1.08883
)

func toLCH(r, g, b int) (float64, float64, float64) {
	lin := func(v int) float64 {
		c := float64(v) / 255
		if c > 0.04045 {
			return math.Pow((c+0.055)/1.055, 2.4)
		}
		return c / 12.92
	}
	rl, gl, bl := lin(r), lin(g), lin(b)

	x := (rl*0.4124564 + gl*0.3575761 + bl*0.1804375) / whiteX
	y := (rl*0.2126729 + gl*0.7151522 + bl*0.0721750) / whiteY
	z := (rl*0.0193339 + gl*0.1191920 + bl*0.9503041) / whiteZ

	f := func(t float64) float64 {
		if t > 0.008856 {
			return math.Cbrt(t)
		}
		return 7.787*t + 16.0/116.0
	}
	fx, fy, fz := f(x), f(y), f(z)

	l := 116*fy - 16
	labA := 500 * (fx - fy)
	labB := 200 * (fy - fz)

	return l, math.Hypot(labA, labB), wrapHue(math.Atan2(labB, labA) * 180 / math.Pi)
}

func fromLCH(l, c, h float64) (int, int, int) {
	rad := h * math.Pi / 180
	labA, labB := c*math.Cos(rad), c*math.Sin(rad)

	fy := (l + 16) / 116
	fx := labA/500 + fy
	fz := fy - labB/200

	inv := func(t float64) float64 {
		if t3 := t * t * t; t3 > 0.008856 {
			return t3
		}
		return (t - 16.0/116.0) / 7.787
	}
	x, y, z := inv(fx)*whiteX, inv(fy)*whiteY, inv(fz)*whiteZ

	gamma := func(v float64) int {
		if v > 0.0031308 {
			v = 1.055*math.Pow(v, 1/2.4) - 0.055
		} else {
			v *= 12.92
		}
		return clampByte(int(v*255 + 0.5))
	}

	return gamma(x*3.2404542 - y*1.5371385 - z*0.4985314),
		gamma(-x*0.9692660 + y*1.8760108 + z*0.0415560),
		gamma(x*0.0556434 - y*0.2040259 + z*1.0572252)
}
