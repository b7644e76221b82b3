package protocol

import "fmt"

// Course is a compass heading as used on the wire ("N", "E", "S", "W").
type Course string

const (
	North Course = "N"
	East  Course = "E"
	South Course = "S"
	West  Course = "W"
)

// Courses lists every course in a stable order.
var Courses = [4]Course{North, East, South, West}

// Delta returns the unit step of c. The y axis grows to the north.
func (c Course) Delta() (dx, dy int) {
	switch c {
	case North:
		return 0, 1
	case East:
		return 1, 0
	case South:
		return 0, -1
	case West:
		return -1, 0
	}
	return 0, 0
}

func (c Course) Valid() bool {
	switch c {
	case North, East, South, West:
		return true
	}
	return false
}

func (c Course) Opposite() Course {
	switch c {
	case North:
		return South
	case East:
		return West
	case South:
		return North
	case West:
		return East
	}
	return ""
}

// Index is the position of c in Courses, or -1.
func (c Course) Index() int {
	for i, v := range Courses {
		if v == c {
			return i
		}
	}
	return -1
}

func ParseCourse(s string) (Course, error) {
	c := Course(s)
	if !c.Valid() {
		return "", fmt.Errorf("%q is not a valid course", s)
	}
	return c, nil
}
