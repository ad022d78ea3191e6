package user

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/pixelforegllc/quantummftools-dash/core"
)

var (
	userRoleTag  = "userrole"
	userRoleText = "invalid role"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"

	pwdTexts = map[string]string{
		pwdMinLenTag:    pwdMinLenText,
		pwdNoSpaceTag:   pwdNoSpaceText,
		pwdNotAllNumTag: pwdNotAllNumText,
		pwdAttrSimTag:   pwdAttrSimText,
		pwdNoCommonTag:  pwdNoCommonText,
	}

	commonPasswords   []string // sorted
	commonPasswordsMu sync.RWMutex
)

// InitValidators registers the user validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(userRoleTag, userRoleValidation)
	core.RegisterCustomTranslation(validate, translator, userRoleTag, userRoleText)

	validate.RegisterStructValidation(userStructValidation, NewUser{}, UpdateUser{}, ChangePassword{}, ResetUserPassword{})
	for tag, text := range pwdTexts {
		core.RegisterCustomTranslation(validate, translator, tag, text)
	}
}

// LoadCommonPasswords reads the gzipped common passwords list (one per line) from fsys.
func LoadCommonPasswords(fsys fs.FS, name string) error {
	file, err := fsys.Open(name)
	if err != nil {
		return errors.Wrap(err, "user.LoadCommonPasswords")
	}
	defer file.Close()

	gzRdr, err := gzip.NewReader(file)
	if err != nil {
		return errors.Wrap(err, "user.LoadCommonPasswords")
	}
	defer gzRdr.Close()

	pwds := make([]string, 0, 128)
	scanner := bufio.NewScanner(gzRdr)
	for scanner.Scan() {
		if pwd := strings.ToLower(strings.TrimSpace(scanner.Text())); pwd != "" {
			pwds = append(pwds, pwd)
		}
	}
	if err = scanner.Err(); err != nil {
		return errors.Wrap(err, "user.LoadCommonPasswords")
	}
	sort.Strings(pwds)

	commonPasswordsMu.Lock()
	commonPasswords = pwds
	commonPasswordsMu.Unlock()
	return nil
}

func isCommonPassword(pwd string) bool {
	commonPasswordsMu.RLock()
	defer commonPasswordsMu.RUnlock()
	lpwd := strings.ToLower(pwd)
	idx := sort.SearchStrings(commonPasswords, lpwd)
	return idx < len(commonPasswords) && commonPasswords[idx] == lpwd
}

// Custom Validators

func userRoleValidation(fl validator.FieldLevel) bool {
	return core.StringInSlice(fl.Field().String(), AllRoles)
}

// userStructValidation applies the password policy on NewUser, UpdateUser, ResetUserPassword and ChangePassword structs.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		reportPasswordErr(sl, usr.Password, "password", "Password", usr.Username, usr.Email)
	case UpdateUser:
		if usr.Password != "" {
			var email string
			if usr.Email != nil {
				email = *usr.Email
			}
			reportPasswordErr(sl, usr.Password, "password", "Password", usr.username, email)
		}
	case ResetUserPassword:
		reportPasswordErr(sl, usr.Password, "password", "Password")
	case ChangePassword:
		if usr.NewPassword != "" {
			reportPasswordErr(sl, usr.NewPassword, "newPassword", "NewPassword", usr.username, usr.email)
		}
	}
}

func reportPasswordErr(sl validator.StructLevel, pwd, fieldName, structFieldName string, attrs ...string) {
	if tag := checkPassword(pwd, attrs...); tag != "" {
		sl.ReportError(pwd, fieldName, structFieldName, tag, "")
	}
}

// ValidatePassword applies the password policy outside of struct validation.
func ValidatePassword(pwd, field string, attrs ...string) error {
	if tag := checkPassword(pwd, attrs...); tag != "" {
		msg := pwdTexts[tag]
		return core.NewValidationError(errors.New(msg), core.FieldError{Field: field, Error: msg})
	}
	return nil
}

// checkPassword returns the tag of the first password policy rule pwd breaks, "" if none:
// - minLen: 8
// - no whitespace
// - no all numeric
// - no user attrs similarity
// - no common password
func checkPassword(pwd string, attrs ...string) string {
	// - minLen: 8
	pwdLen := len([]rune(pwd))
	if pwdLen < pwdMinLen {
		return pwdMinLenTag
	}

	var digitCount int
	for _, char := range pwd {
		// - no whitespace
		if unicode.IsSpace(char) {
			return pwdNoSpaceTag
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
	}

	// - not all numeric
	if digitCount == pwdLen {
		return pwdNotAllNumTag
	}

	// - no user attrs similarity
	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		attr = strings.ToLower(attr)
		ratio := difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(attr, "")).QuickRatio()
		if ratio >= pwdMaxSim {
			return pwdAttrSimTag
		}
		// compare against the local part of emails too
		if at := strings.IndexByte(attr, '@'); at > 0 {
			local := attr[:at]
			ratio = difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(local, "")).QuickRatio()
			if ratio >= pwdMaxSim {
				return pwdAttrSimTag
			}
		}
	}

	// - no common passwords
	if isCommonPassword(pwd) {
		return pwdNoCommonTag
	}
	return ""
}
