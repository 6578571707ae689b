package game

// Faces are the four-character expressions shown on the display.
const (
	FaceEffort    = "X  X" // dispensing
	FaceMoney     = "$  $" // marked card
	FaceLookSmall = "o  o"
	FaceLeft      = ">  >" // turning clockwise
	FaceRight     = "<  <" // turning anticlockwise
	FaceLookBig   = "O  O" // looking for the reference
	FaceBlink     = "-  -" // screensaver
	FaceWild      = "@  @"
	FaceSneaky    = "=  ="
	FaceError     = "EROR"
	FaceFlip      = "FLIP"
	FaceCard      = "CARD" // exit beam blocked
)
