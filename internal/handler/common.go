package handler

import (
    "errors"  // building sentinel errors for context extraction
    "strconv" // parsing numeric claims and path parameters

    "github.com/labstack/echo/v4" // echo context access
)

// getUserID extracts the authenticated user's numeric ID from the Echo
// context, where the JWT middleware stored the token's subject claim.
// JWT numeric claims arrive as float64; string subjects are parsed.
func getUserID(c echo.Context) (uint64, error) { // begin getUserID helper
    v := c.Get("user_id") // fetch user_id from context
    switch t := v.(type) { // perform type switch on the value
    case uint64: // when already uint64
        return t, nil // return directly
    case int: // when stored as int
        return uint64(t), nil // convert to uint64
    case int64: // when stored as int64
        return uint64(t), nil // convert to uint64
    case float64: // when stored as float64
        return uint64(t), nil // convert to uint64
    case string: // when stored as string
        if n, err := strconv.ParseUint(t, 10, 64); err == nil { // parse string to uint64
            return n, nil // return parsed number
        }
    } // end type switch
    return 0, errors.New("invalid user_id in context") // return error if value is missing or invalid
}

// scheduleIDParam parses the :id path parameter as a schedule ID.
func scheduleIDParam(c echo.Context) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return 0, false
    }
    return id, true
}
