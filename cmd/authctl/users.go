package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sportsprop/authcore"
	"github.com/sportsprop/authcore/credstore"
	"github.com/sportsprop/authcore/password"
	"github.com/sportsprop/authcore/permission"
)

func newUserCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts in the account store",
	}

	addCmd := &cobra.Command{
		Use:   "add [identity]",
		Short: "Create an account; the password must pass the strength policy",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserAdd,
	}
	addStoreFlags(addCmd)
	addCmd.Flags().String("password", "", "initial password (required)")
	addCmd.Flags().StringSlice("role", []string{"user"}, "role name (repeatable)")
	addCmd.Flags().String("name", "", "display name")
	addCmd.Flags().String("email", "", "e-mail address")
	addCmd.Flags().String("phone", "", "phone number")
	addCmd.Flags().String("address", "", "postal address")
	addCmd.Flags().String("birthdate", "", "birthdate, YYYY-MM-DD")
	_ = addCmd.MarkFlagRequired("password")
	userCmd.AddCommand(addCmd)

	rolesCmd := &cobra.Command{
		Use:   "roles [identity] [role...]",
		Short: "Replace the roles of an account",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runUserRoles,
	}
	addStoreFlags(rolesCmd)
	userCmd.AddCommand(rolesCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete [identity]",
		Short: "Delete an account and its second-factor data",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserDelete,
	}
	addStoreFlags(deleteCmd)
	userCmd.AddCommand(deleteCmd)

	return userCmd
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	cfg, err := readConfig(cmd)
	if err != nil {
		return err
	}
	hasher, err := password.NewHasher(cfg.Password.Hasher)
	if err != nil {
		return err
	}
	policy, err := password.NewPolicy(cfg.Password.Policy)
	if err != nil {
		return err
	}

	pw, _ := cmd.Flags().GetString("password")
	roles, _ := cmd.Flags().GetStringSlice("role")
	if err := checkRoles(roles); err != nil {
		return err
	}
	profile := password.Profile{Username: args[0]}
	profile.Name, _ = cmd.Flags().GetString("name")
	profile.Email, _ = cmd.Flags().GetString("email")
	profile.Phone, _ = cmd.Flags().GetString("phone")
	profile.Address, _ = cmd.Flags().GetString("address")
	profile.Birthdate, _ = cmd.Flags().GetString("birthdate")

	if a := policy.AssessFor(pw, profile); !a.Overall {
		return fmt.Errorf("%w: %s", authcore.ErrPasswordPolicy, strings.Join(policy.Feedback(a), "; "))
	}
	hash, err := hasher.Hash(pw)
	if err != nil {
		return err
	}

	store, err := openStore(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.CreateUser(cmd.Context(), credstore.User{
		Identity:     args[0],
		PasswordHash: hash,
		Roles:        roles,
		Profile:      profile,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%s)\n", args[0], id)
	return nil
}

func runUserRoles(cmd *cobra.Command, args []string) error {
	roles := args[1:]
	if err := checkRoles(roles); err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetRoles(cmd.Context(), args[0], roles); err != nil {
		return err
	}
	fmt.Printf("roles of %s set to %s\n", args[0], strings.Join(roles, ", "))
	return nil
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteUser(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

// checkRoles rejects unknown role names up front; the engine would
// otherwise drop them silently at login.
func checkRoles(names []string) error {
	_, unknown := permission.RolesOf(names)
	if len(unknown) > 0 {
		return fmt.Errorf("unknown roles: %s", strings.Join(unknown, ", "))
	}
	if len(names) == 0 {
		return errors.New("at least one role is required")
	}
	return nil
}
