package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/launchlog/launchlog-go/internal/model"
)

func (a *app) registerCmd() *cobra.Command {
	var req model.CreateUserRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()

			u, err := a.svc.Register(ctx, req)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and signed in as %s (%s)\n", u.Name, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password, at least 6 characters (required)")
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name (required)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var req model.LoginRequest
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()

			u, err := a.svc.Login(ctx, req)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (required)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, ok := a.svc.CurrentUser()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in (changes go to the shared default owner)")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> role=%s id=%s\n", u.Name, u.Email, u.Role, u.ID)
			return nil
		},
	}
}
