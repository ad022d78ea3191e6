package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
)

func (cli *commandLine) createUserCommand() *cobra.Command {
	var uname, email, role string
	var isAdmin bool

	cmd := &cobra.Command{
		Use:   "createuser",
		Short: "Create a user, or update the one holding the username or email",
		Long:  "Create a user, or update the one holding the username or email. The password is prompted next.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if isAdmin {
				role = user.RoleAdmin
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			return cli.addUser(cmd.Context(), uname, email, role, pwd)
		},
	}
	cmd.Flags().StringVarP(&uname, "username", "u", "", "the user's username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "the user's email")
	cmd.Flags().StringVar(&role, "role", user.RoleUser, "one of "+strings.Join(user.AllRoles, ", "))
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "shorthand for --role admin")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, uname, email, role, pwd string) error {
	uname = core.CleanString(uname)
	email = core.CleanString(email, true /* lower */)
	role = core.CleanString(role, true /* lower */)

	if err := cli.validate.Var(uname, "min=3,max=50,alphanum_"); err != nil {
		return fmt.Errorf("invalid username %q", uname)
	}
	if err := cli.validate.Var(email, "email"); err != nil {
		return fmt.Errorf("invalid email %q", email)
	}
	if !core.StringInSlice(role, user.AllRoles) {
		return fmt.Errorf("invalid role %q, must be one of %s", role, strings.Join(user.AllRoles, ", "))
	}
	if err := user.ValidatePassword(pwd, "password", uname, email); err != nil {
		return err
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if errors.Cause(err) == user.ErrNotFound {
		usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	}

	now := time.Now().UTC()
	switch errors.Cause(err) {
	case nil:
		if err = cli.usrRepo.CheckUniqueness(ctx, uname, email, usr); err != nil {
			return err
		}
		usr.Username = uname
		usr.Email = email
		usr.Role = role
		usr.IsActive = true
		usr.UpdatedAt = now
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		if _, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "User %q updated.\n", uname)
	case user.ErrNotFound:
		usr = user.User{
			Username:    uname,
			Email:       email,
			Role:        role,
			IsActive:    true,
			Permissions: []string{},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		if _, err = cli.usrRepo.CreateUser(ctx, usr); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "User %q created.\n", uname)
	default:
		return err
	}
	return nil
}

func (cli *commandLine) resetPasswordCommand() *cobra.Command {
	var uname string

	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password",
		Long:  "Reset a user's password. The password is prompted next.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			return cli.resetPassword(cmd.Context(), uname, pwd)
		},
	}
	cmd.Flags().StringVarP(&uname, "username", "u", "", "the user's username or email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: core.CleanString(uname)})
	if err != nil {
		return err
	}
	if err = user.ValidatePassword(pwd, "password", usr.Username, usr.Email); err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Password of %q reset.\n", usr.Username)
	return nil
}

func (cli *commandLine) usersCommand() *cobra.Command {
	var roles []string
	var search string

	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := &user.QueryFilter{Search: search, Roles: roles}
			filter.Clean()
			users, err := cli.usrRepo.QueryUsers(cmd.Context(), filter, []core.DBOrdering{{Field: "username", Ascending: true}})
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(users))
			for _, usr := range users {
				lastLogin := "never"
				if usr.LastLogin != nil {
					lastLogin = humanize.Time(*usr.LastLogin)
				}
				rows = append(rows, []string{usr.Username, usr.Email, usr.Role, activeLabel(usr.IsActive), lastLogin})
			}
			fmt.Fprintln(cli.out, renderTable(
				[]string{"Username", "Email", "Role", "Active", "Last login"},
				rows,
				nil,
			))
			fmt.Fprintf(cli.out, "%s user(s)\n", humanize.Comma(int64(len(users))))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "only list users with one of these roles")
	cmd.Flags().StringVar(&search, "search", "", "match on username or email")
	return cmd
}

func activeLabel(active bool) string {
	if active {
		return color.GreenString("yes")
	}
	return color.RedString("no")
}
